package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/dashd/dashd/internal/media"
	"github.com/dashd/dashd/internal/storage"
)

func TestNotes_CreateListGet(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/notes", map[string]string{"content": "walked to the river"})
	expectStatus(t, resp, http.StatusCreated)
	var created storage.Note
	decodeBody(t, resp, &created)
	if created.ID == "" || created.Content != "walked to the river" {
		t.Fatalf("unexpected note: %+v", created)
	}

	resp = env.do(t, http.MethodGet, "/api/notes", nil)
	expectStatus(t, resp, http.StatusOK)
	var notes []storage.Note
	decodeBody(t, resp, &notes)
	if len(notes) != 1 || notes[0].ID != created.ID {
		t.Fatalf("list = %+v", notes)
	}

	resp = env.do(t, http.MethodGet, "/api/notes/"+created.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	var got storage.Note
	decodeBody(t, resp, &got)
	if got.Content != created.Content {
		t.Fatalf("get content = %q", got.Content)
	}
}

func TestNotes_ListLimit(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		if _, err := env.store.InsertNote(context.Background(), "entry", ""); err != nil {
			t.Fatal(err)
		}
	}
	resp := env.do(t, http.MethodGet, "/api/notes?limit=2", nil)
	expectStatus(t, resp, http.StatusOK)
	var notes []storage.Note
	decodeBody(t, resp, &notes)
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
}

func TestNotes_EmptyContentRejected(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/notes", map[string]string{"content": "   "})
	env2 := expectErrorType(t, resp, http.StatusBadRequest, "invalid_request_error")
	if !strings.Contains(env2.Error.Message, "content") {
		t.Fatalf("message = %q, want it to name the field", env2.Error.Message)
	}
}

func TestNotes_GetUnknown(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/notes/nope", nil)
	expectErrorType(t, resp, http.StatusNotFound, "not_found")
}

func TestNotes_Update(t *testing.T) {
	env := newTestEnv(t)
	n, err := env.store.InsertNote(context.Background(), "draft", "")
	if err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, http.MethodPatch, "/api/notes/"+n.ID, map[string]string{"content": "final"})
	expectStatus(t, resp, http.StatusOK)
	var got storage.Note
	decodeBody(t, resp, &got)
	if got.Content != "final" || !got.CreatedAt.Equal(n.CreatedAt) {
		t.Fatalf("updated note = %+v", got)
	}

	resp = env.do(t, http.MethodPatch, "/api/notes/missing", map[string]string{"content": "x"})
	expectErrorType(t, resp, http.StatusNotFound, "not_found")

	resp = env.do(t, http.MethodPatch, "/api/notes/"+n.ID, map[string]string{"content": ""})
	expectErrorType(t, resp, http.StatusBadRequest, "invalid_request_error")
}

func TestNotes_DeleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	n, err := env.store.InsertNote(context.Background(), "gone soon", "")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodDelete, "/api/notes/"+n.ID, nil)
		expectStatus(t, resp, http.StatusOK)
	}
	if _, err := env.store.GetNote(context.Background(), n.ID); err != storage.ErrNotFound {
		t.Fatalf("GetNote after delete: %v", err)
	}
}

func TestNotes_JSONImageURLMustExist(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/notes", map[string]string{
		"content":   "with picture",
		"image_url": "/images/1700000000000-missing.png",
	})
	expectErrorType(t, resp, http.StatusBadRequest, "invalid_request_error")

	resp = env.do(t, http.MethodPost, "/api/notes", map[string]string{
		"content":   "with picture",
		"image_url": "https://elsewhere.example/cat.png",
	})
	expectErrorType(t, resp, http.StatusBadRequest, "invalid_request_error")

	ref, err := env.media.Put(context.Background(), "1700000000000-cat.png", pngBytes, "image/png")
	if err != nil {
		t.Fatal(err)
	}
	resp = env.do(t, http.MethodPost, "/api/notes", map[string]string{
		"content":   "with picture",
		"image_url": ref.URL(),
	})
	expectStatus(t, resp, http.StatusCreated)
	var n storage.Note
	decodeBody(t, resp, &n)
	if n.ImageURL != "/images/1700000000000-cat.png" {
		t.Fatalf("image_url = %q", n.ImageURL)
	}
}

func TestNotes_MultipartWithImage(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, map[string]string{"content": "sunset"}, "image", "my sunset.png", "image/png", pngBytes)
	resp := env.postMultipart(t, "/api/notes", body, ct)
	expectStatus(t, resp, http.StatusCreated)

	var n storage.Note
	decodeBody(t, resp, &n)
	// Now is fixed at 2024-03-05T12:00:00Z.
	want := "/images/1709640000000-my_sunset.png"
	if n.ImageURL != want {
		t.Fatalf("image_url = %q, want %q", n.ImageURL, want)
	}

	ref, err := media.RefFromURL(n.ImageURL)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := env.media.Get(context.Background(), ref)
	if err != nil {
		t.Fatalf("stored image: %v", err)
	}
	if string(obj.Data) != string(pngBytes) {
		t.Fatal("stored bytes differ from upload")
	}
}

func TestNotes_MultipartWithoutImage(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string]string{"content": "text only"}, "", "", "", nil)
	resp := env.postMultipart(t, "/api/notes", body, ct)
	expectStatus(t, resp, http.StatusCreated)

	var n storage.Note
	decodeBody(t, resp, &n)
	if n.ImageURL != "" {
		t.Fatalf("image_url = %q, want empty", n.ImageURL)
	}
}

func TestNotes_MultipartRejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string]string{"content": "oops"}, "image", "notes.txt", "text/plain", []byte("plain text"))
	resp := env.postMultipart(t, "/api/notes", body, ct)
	expectErrorType(t, resp, http.StatusBadRequest, "invalid_request_error")

	notes, err := env.store.ListNotes(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Fatalf("note was stored despite rejected image")
	}
}

func TestNotes_MultipartEmptyContentStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string]string{"content": ""}, "image", "a.png", "image/png", pngBytes)
	resp := env.postMultipart(t, "/api/notes", body, ct)
	expectErrorType(t, resp, http.StatusBadRequest, "invalid_request_error")

	entries, err := os.ReadDir(env.mediaDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("media dir has %d entries, want 0", len(entries))
	}
}

func TestNotes_MultipartOversizeContentStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	content := strings.Repeat("x", 20001)
	body, ct := multipartBody(t, map[string]string{"content": content}, "image", "a.png", "image/png", pngBytes)
	resp := env.postMultipart(t, "/api/notes", body, ct)
	expectErrorType(t, resp, http.StatusBadRequest, "invalid_request_error")

	entries, err := os.ReadDir(env.mediaDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("media dir has %d entries, want 0", len(entries))
	}
	notes, err := env.store.ListNotes(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Fatalf("got %d notes, want 0", len(notes))
	}
}

func TestMediaUpload_SameNameSameMillisecond(t *testing.T) {
	env := newTestEnv(t)

	var refs []mediaResponse
	for range 2 {
		body, ct := multipartBody(t, nil, "file", "photo.png", "", pngBytes)
		resp := env.postMultipart(t, "/api/media", body, ct)
		expectStatus(t, resp, http.StatusCreated)
		var out mediaResponse
		decodeBody(t, resp, &out)
		refs = append(refs, out)
	}
	if refs[0].Ref.Name == refs[1].Ref.Name {
		t.Fatalf("both uploads stored as %q", refs[0].Ref.Name)
	}
	for _, r := range refs {
		resp := env.do(t, http.MethodGet, r.URL, nil)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
}

func TestMediaUpload(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, nil, "file", "photo.png", "", pngBytes)
	resp := env.postMultipart(t, "/api/media", body, ct)
	expectStatus(t, resp, http.StatusCreated)

	var out mediaResponse
	decodeBody(t, resp, &out)
	if out.Ref.Name != "1709640000000-photo.png" || out.URL != "/images/1709640000000-photo.png" {
		t.Fatalf("unexpected upload response: %+v", out)
	}
}

func TestMediaUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.MaxUploadBytes = 16 })
	body, ct := multipartBody(t, nil, "file", "big.png", "image/png", pngBytes)
	resp := env.postMultipart(t, "/api/media", body, ct)
	if resp.StatusCode != http.StatusRequestEntityTooLarge && resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 413 or 400", resp.StatusCode)
	}
}

func TestMediaUpload_RequiresMultipart(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/media", map[string]string{"file": "nope"})
	expectErrorType(t, resp, http.StatusBadRequest, "invalid_request_error")
}

func TestImages_ServeWithCaching(t *testing.T) {
	env := newTestEnv(t)
	ref, err := env.media.Put(context.Background(), "1-cat.png", pngBytes, "image/png")
	if err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, http.MethodGet, ref.URL(), nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type = %q", ct)
	}
	etag := resp.Header.Get("ETag")
	if !strings.HasPrefix(etag, `"`) {
		t.Fatalf("ETag = %q, want quoted", etag)
	}
	if resp.Header.Get("Cache-Control") == "" {
		t.Fatal("missing Cache-Control")
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != string(pngBytes) {
		t.Fatal("served bytes differ")
	}

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+ref.URL(), nil)
	req.Header.Set("If-None-Match", etag)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotModified {
		t.Fatalf("conditional GET status = %d, want 304", resp2.StatusCode)
	}
}

func TestImages_Unknown(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/images/nothing-here.png", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`*`, true},
		{`"other"`, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, `"abc"`); got != tt.want {
			t.Errorf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
