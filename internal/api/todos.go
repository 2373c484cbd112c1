package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type todoRequest struct {
	Task string `json:"task"`
}

type toggleRequest struct {
	Current *bool `json:"current"`
}

func handleListTodos(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		todos, err := deps.Store.ListTodos(r.Context())
		if err != nil {
			storeError(w, err, "todo", "list todos")
			return
		}
		writeJSON(w, http.StatusOK, todos)
	}
}

func handleCreateTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req todoRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		t, err := deps.Store.InsertTodo(r.Context(), req.Task)
		if err != nil {
			storeError(w, err, "todo", "save todo")
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func handleFlipTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Store.FlipTodo(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "todo", "flip todo")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// handleToggleTodo writes the negation of the state the client last saw.
// Kept for clients that send their own view of the todo; prefer flip.
func handleToggleTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toggleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Current == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "current is required")
			return
		}
		if err := deps.Store.ToggleTodo(r.Context(), chi.URLParam(r, "id"), *req.Current); err != nil {
			storeError(w, err, "todo", "toggle todo")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": chi.URLParam(r, "id"), "is_completed": !*req.Current})
	}
}

func handleDeleteTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.DeleteTodo(r.Context(), chi.URLParam(r, "id")); err != nil {
			storeError(w, err, "todo", "delete todo")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
