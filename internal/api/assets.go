package api

import (
	"net/http"
	"time"

	"github.com/dashd/dashd/internal/storage"
)

type assetRequest struct {
	Date   string   `json:"date"`
	Amount *float64 `json:"amount"`
}

func handleListAssets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets, err := deps.Store.ListAssets(r.Context())
		if err != nil {
			storeError(w, err, "asset", "list assets")
			return
		}
		writeJSON(w, http.StatusOK, assets)
	}
}

func handleCreateAsset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assetRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Amount == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "amount is required")
			return
		}
		date, err := time.Parse(storage.DateLayout, req.Date)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid date %q: want YYYY-MM-DD", req.Date)
			return
		}

		a, err := deps.Store.InsertAsset(r.Context(), date, *req.Amount)
		if err != nil {
			storeError(w, err, "asset", "save asset")
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}
