package api

import (
	"net/http"
	"strings"

	"github.com/dashd/dashd/internal/proxy"
)

type chatRequest struct {
	Prompt string `json:"prompt"`
}

type chatResponse struct {
	Response string     `json:"response"`
	Kind     proxy.Kind `json:"kind"`
}

// handleChat forwards one prompt. Provider failures are reported in the body
// with status 200 so the widget can render them inline.
func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}

		res := deps.GenAI.Complete(r.Context(), req.Prompt)
		writeJSON(w, http.StatusOK, chatResponse{Response: res.Message(), Kind: res.Kind})
	}
}
