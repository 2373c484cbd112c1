package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dashd/dashd/internal/composer"
)

type timeResponse struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	UnixMS   int64  `json:"unix_ms"`
}

// headlineQuery returns the q parameter, or the configured query when q is
// absent. An explicit empty q asks for top headlines.
func headlineQuery(deps Deps, r *http.Request) string {
	if q, ok := r.URL.Query()["q"]; ok {
		return q[0]
	}
	return deps.Feed.DefaultQuery()
}

func handleHeadlines(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", deps.HeadlineLimit, maxHeadlineLimit)
		items := deps.Feed.FetchHeadlines(r.Context(), headlineQuery(deps, r), limit)
		writeJSON(w, http.StatusOK, composer.Headlines(items))
	}
}

// handleNewsXML passes the feed document through for browser widgets that
// parse it themselves.
func handleNewsXML(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Feed.Raw(r.Context(), r.URL.Query().Get("q"))
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if err != nil {
			slog.Warn("feed passthrough failed", "error", err)
			httpError(w, http.StatusBadGateway, "upstream_error", "failed to fetch feed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(doc)
	}
}

func handleTime(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := deps.Now().In(deps.Location)
		writeJSON(w, http.StatusOK, timeResponse{
			Time:     now.Format(time.RFC3339),
			Timezone: deps.Location.String(),
			UnixMS:   now.UnixMilli(),
		})
	}
}
