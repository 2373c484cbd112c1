package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const noteColumns = `id, content, image_url, created_at`

// ListNotes returns notes newest first. A limit <= 0 returns every note.
func (s *Store) ListNotes(ctx context.Context, limit int) ([]Note, error) {
	q := `SELECT ` + noteColumns + ` FROM notes ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

func (s *Store) GetNote(ctx context.Context, id string) (Note, error) {
	n, err := scanNote(s.queryRow(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	return n, err
}

// InsertNote stores a new note. imageURL may be empty; when set it is stored
// as given, the caller is responsible for checking that the object exists.
func (s *Store) InsertNote(ctx context.Context, content, imageURL string) (Note, error) {
	in := noteInput{Content: strings.TrimSpace(content), ImageURL: imageURL}
	if err := check(in); err != nil {
		return Note{}, err
	}

	created := s.stamp()
	n := Note{
		ID:        uuid.New().String(),
		Content:   content,
		ImageURL:  in.ImageURL,
		CreatedAt: fromMillis(created),
	}

	var image sql.NullString
	if n.ImageURL != "" {
		image = sql.NullString{String: n.ImageURL, Valid: true}
	}
	_, err := s.exec(ctx, `INSERT INTO notes (id, content, image_url, created_at) VALUES (?, ?, ?, ?)`,
		n.ID, n.Content, image, created,
	)
	if err != nil {
		return Note{}, err
	}
	return n, nil
}

// ValidateNoteContent applies the same content rules as InsertNote and
// UpdateNoteContent without touching the database.
func ValidateNoteContent(content string) error {
	return check(noteInput{Content: strings.TrimSpace(content)})
}

func (s *Store) UpdateNoteContent(ctx context.Context, id, content string) error {
	if err := ValidateNoteContent(content); err != nil {
		return err
	}
	res, err := s.exec(ctx, `UPDATE notes SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteNote removes a note. Deleting an absent note is not an error.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `DELETE FROM notes WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (Note, error) {
	var n Note
	var image sql.NullString
	var created int64
	if err := r.Scan(&n.ID, &n.Content, &image, &created); err != nil {
		return Note{}, err
	}
	n.ImageURL = image.String
	n.CreatedAt = fromMillis(created)
	return n, nil
}
