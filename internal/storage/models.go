package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports input that was rejected before reaching the database.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Note is a diary entry. ImageURL is empty when no image is attached.
type Note struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Todo struct {
	ID          string    `json:"id"`
	Task        string    `json:"task"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// AssetRecord is one observation in the asset-value time series. Several
// records may share a RecordDate.
type AssetRecord struct {
	ID         string    `json:"id"`
	RecordDate time.Time `json:"record_date"`
	Amount     float64   `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

// DateLayout is the storage and wire format of AssetRecord.RecordDate.
const DateLayout = "2006-01-02"
