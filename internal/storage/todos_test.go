package storage

import (
	"context"
	"errors"
	"testing"
)

func TestInsertTodoEmptyTask(t *testing.T) {
	s := openTestStore(t)

	_, err := s.InsertTodo(context.Background(), "  ")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if verr.Field != "task" {
		t.Errorf("Field = %q, want %q", verr.Field, "task")
	}
}

func TestListTodosOrdering(t *testing.T) {
	s := openTestStore(t)
	frozenClock(s)
	ctx := context.Background()

	ids := make(map[string]string)
	for _, task := range []string{"milk", "eggs", "bread", "rice", "tea"} {
		td, err := s.InsertTodo(ctx, task)
		if err != nil {
			t.Fatalf("InsertTodo(%q): %v", task, err)
		}
		ids[task] = td.ID
	}
	for _, task := range []string{"milk", "bread"} {
		if _, err := s.FlipTodo(ctx, ids[task]); err != nil {
			t.Fatalf("FlipTodo(%q): %v", task, err)
		}
	}

	got, err := s.ListTodos(ctx)
	if err != nil {
		t.Fatalf("ListTodos: %v", err)
	}

	want := []string{"tea", "rice", "eggs", "bread", "milk"}
	if len(got) != len(want) {
		t.Fatalf("got %d todos, want %d", len(got), len(want))
	}
	for i, task := range want {
		if got[i].Task != task {
			t.Errorf("todo[%d] = %q, want %q", i, got[i].Task, task)
		}
	}

	seenDone := false
	for i, td := range got {
		if td.IsCompleted {
			seenDone = true
			continue
		}
		if seenDone {
			t.Errorf("open todo %q at %d listed after a completed one", td.Task, i)
		}
	}
}

func TestToggleTodo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	td, err := s.InsertTodo(ctx, "water plants")
	if err != nil {
		t.Fatalf("InsertTodo: %v", err)
	}

	if err := s.ToggleTodo(ctx, td.ID, false); err != nil {
		t.Fatalf("ToggleTodo(false): %v", err)
	}
	if got := todoState(t, s, td.ID); !got {
		t.Errorf("after ToggleTodo(false) is_completed = %v, want true", got)
	}

	if err := s.ToggleTodo(ctx, td.ID, true); err != nil {
		t.Fatalf("ToggleTodo(true): %v", err)
	}
	if got := todoState(t, s, td.ID); got {
		t.Errorf("after ToggleTodo(true) is_completed = %v, want false", got)
	}
}

// TestToggleTodoStaleState reproduces the lost update of the client-state
// toggle: two clients that both saw "open" each toggle once, and the todo
// ends up completed instead of back to open.
func TestToggleTodoStaleState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	td, err := s.InsertTodo(ctx, "shared chore")
	if err != nil {
		t.Fatalf("InsertTodo: %v", err)
	}

	observed := false
	if err := s.ToggleTodo(ctx, td.ID, observed); err != nil {
		t.Fatalf("first ToggleTodo: %v", err)
	}
	if err := s.ToggleTodo(ctx, td.ID, observed); err != nil {
		t.Fatalf("second ToggleTodo: %v", err)
	}

	if got := todoState(t, s, td.ID); !got {
		t.Errorf("is_completed = %v, want true (second toggle lost)", got)
	}
}

func TestFlipTodo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	td, err := s.InsertTodo(ctx, "call mom")
	if err != nil {
		t.Fatalf("InsertTodo: %v", err)
	}

	flipped, err := s.FlipTodo(ctx, td.ID)
	if err != nil {
		t.Fatalf("FlipTodo: %v", err)
	}
	if !flipped.IsCompleted {
		t.Errorf("first flip IsCompleted = false, want true")
	}
	if flipped.Task != "call mom" {
		t.Errorf("Task = %q, want %q", flipped.Task, "call mom")
	}

	flipped, err = s.FlipTodo(ctx, td.ID)
	if err != nil {
		t.Fatalf("FlipTodo: %v", err)
	}
	if flipped.IsCompleted {
		t.Errorf("second flip IsCompleted = true, want false")
	}
}

func TestToggleAndFlipNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ToggleTodo(ctx, "missing", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleTodo error = %v, want ErrNotFound", err)
	}
	if _, err := s.FlipTodo(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FlipTodo error = %v, want ErrNotFound", err)
	}
}

func TestDeleteTodoIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	td, err := s.InsertTodo(ctx, "temp")
	if err != nil {
		t.Fatalf("InsertTodo: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.DeleteTodo(ctx, td.ID); err != nil {
			t.Fatalf("DeleteTodo #%d: %v", i+1, err)
		}
	}

	todos, err := s.ListTodos(ctx)
	if err != nil {
		t.Fatalf("ListTodos: %v", err)
	}
	if len(todos) != 0 {
		t.Errorf("got %d todos, want 0", len(todos))
	}
}

func todoState(t *testing.T, s *Store, id string) bool {
	t.Helper()
	todos, err := s.ListTodos(context.Background())
	if err != nil {
		t.Fatalf("ListTodos: %v", err)
	}
	for _, td := range todos {
		if td.ID == id {
			return td.IsCompleted
		}
	}
	t.Fatalf("todo %s not found", id)
	return false
}
