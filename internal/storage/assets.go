package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ListAssets returns the asset series ordered by record date, then by
// insertion for records sharing a date.
func (s *Store) ListAssets(ctx context.Context) ([]AssetRecord, error) {
	rows, err := s.query(ctx, `SELECT id, record_date, amount, created_at FROM asset_records ORDER BY record_date ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []AssetRecord{}
	for rows.Next() {
		var a AssetRecord
		var date string
		var created int64
		if err := rows.Scan(&a.ID, &date, &a.Amount, &created); err != nil {
			return nil, err
		}
		d, err := time.Parse(DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parsing record_date for asset %s: %w", a.ID, err)
		}
		a.RecordDate = d
		a.CreatedAt = fromMillis(created)
		results = append(results, a)
	}
	return results, rows.Err()
}

// InsertAsset appends one observation. Only the calendar date of date is kept.
func (s *Store) InsertAsset(ctx context.Context, date time.Time, amount float64) (AssetRecord, error) {
	if date.IsZero() {
		return AssetRecord{}, &ValidationError{Field: "date", Reason: "must not be empty"}
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return AssetRecord{}, &ValidationError{Field: "amount", Reason: "must be a finite number"}
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	created := s.stamp()
	a := AssetRecord{
		ID:         uuid.New().String(),
		RecordDate: day,
		Amount:     amount,
		CreatedAt:  fromMillis(created),
	}
	_, err := s.exec(ctx, `INSERT INTO asset_records (id, record_date, amount, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, day.Format(DateLayout), a.Amount, created,
	)
	if err != nil {
		return AssetRecord{}, err
	}
	return a, nil
}
