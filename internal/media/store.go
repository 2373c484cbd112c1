// Package media stores image blobs attached to notes.
package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced object does not exist.
var ErrNotFound = errors.New("media: object not found")

// URLPrefix is the path under which objects are served.
const URLPrefix = "/images/"

// Ref identifies a stored object by name.
type Ref struct {
	Name string `json:"name"`
}

// URL returns the path the HTTP layer serves the object from. Notes store
// this value in image_url.
func (r Ref) URL() string {
	return URLPrefix + r.Name
}

// RefFromURL is the inverse of Ref.URL.
func RefFromURL(u string) (Ref, error) {
	name, ok := strings.CutPrefix(u, URLPrefix)
	if !ok {
		return Ref{}, fmt.Errorf("media: %q is not an image URL", u)
	}
	if err := ValidateName(name); err != nil {
		return Ref{}, err
	}
	return Ref{Name: name}, nil
}

// Object is a stored blob with the metadata needed for HTTP caching.
type Object struct {
	Ref         Ref
	Data        []byte
	ContentType string
	// ETag is a quoted validation token, never empty.
	ETag string
	Size int64
}

// Store is a put/get-by-name blob store. Stores do not deduplicate: two puts
// of identical bytes under different names are two objects.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (Ref, error)
	Get(ctx context.Context, ref Ref) (*Object, error)
	Exists(ctx context.Context, ref Ref) (bool, error)
}

// ObjectName builds an object name of the form <unix-millis>-<sanitized base
// name>. Two uploads of the same file in the same millisecond get the same
// name; use FreeName when writing to a store.
func ObjectName(now time.Time, original string) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), sanitize(original))
}

// FreeName returns ObjectName(now, original) unless the store already holds
// an object by that name, in which case a short random tag is inserted after
// the timestamp.
func FreeName(ctx context.Context, s Store, now time.Time, original string) (string, error) {
	name := ObjectName(now, original)
	for range 4 {
		ok, err := s.Exists(ctx, Ref{Name: name})
		if err != nil {
			return "", err
		}
		if !ok {
			return name, nil
		}
		name = fmt.Sprintf("%d-%s-%s", now.UnixMilli(), uuid.NewString()[:8], sanitize(original))
	}
	return "", fmt.Errorf("media: no free name for %q", original)
}

func sanitize(original string) string {
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	clean := strings.TrimLeft(b.String(), ".")
	if clean == "" {
		clean = "upload"
	}
	return clean
}

// ValidateName rejects names that could escape the store's namespace.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("media: invalid object name %q", name)
	case strings.ContainsAny(name, "/\\"), strings.Contains(name, ".."):
		return fmt.Errorf("media: invalid object name %q", name)
	case strings.HasSuffix(name, metaSuffix):
		return fmt.Errorf("media: reserved object name %q", name)
	}
	return nil
}

func quoteETag(tag string) string {
	if strings.HasPrefix(tag, `"`) || strings.HasPrefix(tag, `W/"`) {
		return tag
	}
	return `"` + tag + `"`
}
