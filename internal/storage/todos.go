package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const todoColumns = `id, task, is_completed, created_at`

// ListTodos returns open todos before completed ones, newest first within
// each group.
func (s *Store) ListTodos(ctx context.Context) ([]Todo, error) {
	rows, err := s.query(ctx, `SELECT `+todoColumns+` FROM todos ORDER BY is_completed ASC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func (s *Store) InsertTodo(ctx context.Context, task string) (Todo, error) {
	task = strings.TrimSpace(task)
	if err := check(todoInput{Task: task}); err != nil {
		return Todo{}, err
	}

	created := s.stamp()
	t := Todo{
		ID:        uuid.New().String(),
		Task:      task,
		CreatedAt: fromMillis(created),
	}
	_, err := s.exec(ctx, `INSERT INTO todos (id, task, is_completed, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Task, false, created,
	)
	if err != nil {
		return Todo{}, err
	}
	return t, nil
}

// ToggleTodo stores the negation of current, the completion state the caller
// last observed. Two callers holding the same stale view both write the same
// value, so one of the toggles is lost; FlipTodo does not have this problem.
func (s *Store) ToggleTodo(ctx context.Context, id string, current bool) error {
	res, err := s.exec(ctx, `UPDATE todos SET is_completed = ? WHERE id = ?`, !current, id)
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

// FlipTodo inverts the completion state in a single statement and returns
// the updated todo.
func (s *Store) FlipTodo(ctx context.Context, id string) (Todo, error) {
	t, err := scanTodo(s.queryRow(ctx,
		`UPDATE todos SET is_completed = NOT is_completed WHERE id = ? RETURNING `+todoColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, ErrNotFound
	}
	return t, err
}

// DeleteTodo removes a todo. Deleting an absent todo is not an error.
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `DELETE FROM todos WHERE id = ?`, id)
	return err
}

func scanTodo(r rowScanner) (Todo, error) {
	var t Todo
	var created int64
	if err := r.Scan(&t.ID, &t.Task, &t.IsCompleted, &created); err != nil {
		return Todo{}, err
	}
	t.CreatedAt = fromMillis(created)
	return t, nil
}
