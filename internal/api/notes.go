package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dashd/dashd/internal/media"
	"github.com/dashd/dashd/internal/storage"
)

type noteRequest struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

type mediaResponse struct {
	Ref media.Ref `json:"ref"`
	URL string    `json:"url"`
}

func handleListNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 0, 500)

		notes, err := deps.Store.ListNotes(r.Context(), limit)
		if err != nil {
			storeError(w, err, "note", "list notes")
			return
		}
		writeJSON(w, http.StatusOK, notes)
	}
}

func handleGetNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Store.GetNote(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "note", "get note")
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

// handleCreateNote accepts either JSON {content, image_url} or a multipart
// form with a content field and an optional image file.
func handleCreateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req noteRequest

		if isMultipart(r) {
			r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes+maxRequestBodySize)
			if err := r.ParseMultipartForm(deps.MaxUploadBytes); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
				return
			}
			defer r.MultipartForm.RemoveAll()

			req.Content = r.FormValue("content")
			// Validate before the upload so a rejected note leaves no image behind.
			if err := storage.ValidateNoteContent(req.Content); err != nil {
				storeError(w, err, "note", "save note")
				return
			}
			file, header, err := r.FormFile("image")
			switch {
			case errors.Is(err, http.ErrMissingFile):
			case err != nil:
				httpError(w, http.StatusBadRequest, "invalid_request_error", "reading image: %v", err)
				return
			default:
				defer file.Close()
				ref, ok := storeUpload(r.Context(), w, deps, file, header)
				if !ok {
					return
				}
				req.ImageURL = ref.URL()
			}
		} else {
			if !decodeJSON(w, r, &req) {
				return
			}
			if req.ImageURL != "" && !checkImageRef(r.Context(), w, deps, req.ImageURL) {
				return
			}
		}

		n, err := deps.Store.InsertNote(r.Context(), req.Content, req.ImageURL)
		if err != nil {
			storeError(w, err, "note", "save note")
			return
		}
		writeJSON(w, http.StatusCreated, n)
	}
}

func handleUpdateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req noteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := deps.Store.UpdateNoteContent(r.Context(), id, req.Content); err != nil {
			storeError(w, err, "note", "update note")
			return
		}

		n, err := deps.Store.GetNote(r.Context(), id)
		if err != nil {
			storeError(w, err, "note", "get note")
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func handleDeleteNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
			storeError(w, err, "note", "delete note")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleUploadMedia(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isMultipart(r) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "expected multipart/form-data with a file field")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes+maxRequestBodySize)
		if err := r.ParseMultipartForm(deps.MaxUploadBytes); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer file.Close()

		ref, ok := storeUpload(r.Context(), w, deps, file, header)
		if !ok {
			return
		}
		writeJSON(w, http.StatusCreated, mediaResponse{Ref: ref, URL: ref.URL()})
	}
}

func handleImage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, err := deps.Media.Get(r.Context(), media.Ref{Name: chi.URLParam(r, "name")})
		if errors.Is(err, media.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			slog.Error("reading media object failed", "name", chi.URLParam(r, "name"), "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "failed to read image: %v", err)
			return
		}

		h := w.Header()
		h.Set("ETag", obj.ETag)
		h.Set("Cache-Control", "public, max-age=86400")
		if etagMatches(r.Header.Get("If-None-Match"), obj.ETag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		h.Set("Content-Type", obj.ContentType)
		h.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		w.WriteHeader(http.StatusOK)
		w.Write(obj.Data)
	}
}

// storeUpload validates an uploaded image and writes it to the media store
// under a timestamped name.
func storeUpload(ctx context.Context, w http.ResponseWriter, deps Deps, file multipart.File, header *multipart.FileHeader) (media.Ref, bool) {
	data, err := io.ReadAll(io.LimitReader(file, deps.MaxUploadBytes+1))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
		return media.Ref{}, false
	}
	if int64(len(data)) > deps.MaxUploadBytes {
		httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "file exceeds %d bytes", deps.MaxUploadBytes)
		return media.Ref{}, false
	}
	if len(data) == 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "file is empty")
		return media.Ref{}, false
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "file is not an image (%s)", contentType)
		return media.Ref{}, false
	}

	name, err := media.FreeName(ctx, deps.Media, deps.Now(), header.Filename)
	if err != nil {
		slog.Error("naming media object failed", "filename", header.Filename, "error", err)
		httpError(w, http.StatusBadGateway, "api_error", "failed to store image: %v", err)
		return media.Ref{}, false
	}
	ref, err := deps.Media.Put(ctx, name, data, contentType)
	if err != nil {
		slog.Error("storing media object failed", "filename", header.Filename, "error", err)
		httpError(w, http.StatusBadGateway, "api_error", "failed to store image: %v", err)
		return media.Ref{}, false
	}
	return ref, true
}

// checkImageRef requires imageURL to name an existing media object.
func checkImageRef(ctx context.Context, w http.ResponseWriter, deps Deps, imageURL string) bool {
	ref, err := media.RefFromURL(imageURL)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid image_url: %v", err)
		return false
	}
	ok, err := deps.Media.Exists(ctx, ref)
	if err != nil {
		slog.Error("checking media object failed", "name", ref.Name, "error", err)
		httpError(w, http.StatusBadGateway, "api_error", "failed to check image: %v", err)
		return false
	}
	if !ok {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid image_url: %s does not exist", imageURL)
		return false
	}
	return true
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		c := strings.TrimSpace(candidate)
		if c == "*" || strings.TrimPrefix(c, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}

