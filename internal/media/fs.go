package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

const metaSuffix = ".meta.json"

type objectMeta struct {
	ContentType string `json:"content_type"`
}

// FSStore keeps objects as files in a single directory. The content type of
// each object lives in a sidecar file next to it.
type FSStore struct {
	dir string
}

// NewFSStore creates dir if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Put(ctx context.Context, name string, data []byte, contentType string) (Ref, error) {
	if err := ValidateName(name); err != nil {
		return Ref{}, err
	}
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	p := filepath.Join(s.dir, name)
	if err := writeFileAtomic(p, data); err != nil {
		return Ref{}, fmt.Errorf("writing object %s: %w", name, err)
	}
	meta, err := json.Marshal(objectMeta{ContentType: contentType})
	if err != nil {
		return Ref{}, err
	}
	if err := writeFileAtomic(p+metaSuffix, meta); err != nil {
		return Ref{}, fmt.Errorf("writing metadata for %s: %w", name, err)
	}
	return Ref{Name: name}, nil
}

func (s *FSStore) Get(ctx context.Context, ref Ref) (*Object, error) {
	if err := ValidateName(ref.Name); err != nil {
		return nil, ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := filepath.Join(s.dir, ref.Name)
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", ref.Name, err)
	}

	contentType := ""
	if raw, err := os.ReadFile(p + metaSuffix); err == nil {
		var m objectMeta
		if json.Unmarshal(raw, &m) == nil {
			contentType = m.ContentType
		}
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return &Object{
		Ref:         ref,
		Data:        data,
		ContentType: contentType,
		ETag:        fileETag(info),
		Size:        int64(len(data)),
	}, nil
}

func (s *FSStore) Exists(ctx context.Context, ref Ref) (bool, error) {
	if ValidateName(ref.Name) != nil {
		return false, nil
	}
	_, err := os.Stat(filepath.Join(s.dir, ref.Name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// fileETag derives the validator from size and modification time.
func fileETag(info fs.FileInfo) string {
	return quoteETag(strconv.FormatInt(info.Size(), 16) + "-" + strconv.FormatInt(info.ModTime().UnixNano(), 16))
}

func writeFileAtomic(p string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}
