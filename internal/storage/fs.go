package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/videoflix/streamcore/pkg/models"
)

// FSStore is a local-filesystem content store rooted at a single directory.
// Used for single-node deployments and throughout the tests.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns the store.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &models.StorageError{Op: "init", Key: root, Err: err}
	}
	return &FSStore{root: root}, nil
}

// path maps a key to an absolute path, rejecting traversal outside the root.
func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("empty storage key")
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes an object via a temp file and rename, so readers never observe
// a partially written object.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &models.StorageError{Op: "put", Key: key, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return &models.StorageError{Op: "put", Key: key, Err: err}
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &models.StorageError{Op: "put", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &models.StorageError{Op: "put", Key: key, Err: err}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return &models.StorageError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// PutFile uploads a local file.
func (s *FSStore) PutFile(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &models.StorageError{Op: "put", Key: key, Err: err}
	}
	defer f.Close()
	return s.Put(ctx, key, f, -1, ContentTypeFor(key))
}

// Open returns a seekable handle on an object.
func (s *FSStore) Open(ctx context.Context, key string) (Object, ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, fmt.Errorf("object %s: %w", key, models.ErrNotFound)
		}
		return nil, ObjectInfo{}, &models.StorageError{Op: "open", Key: key, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, &models.StorageError{Op: "open", Key: key, Err: err}
	}
	return f, ObjectInfo{Size: st.Size(), ModTime: st.ModTime()}, nil
}

// Stat returns object info.
func (s *FSStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	p, err := s.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, fmt.Errorf("object %s: %w", key, models.ErrNotFound)
		}
		return ObjectInfo{}, &models.StorageError{Op: "stat", Key: key, Err: err}
	}
	return ObjectInfo{Size: st.Size(), ModTime: st.ModTime()}, nil
}

// FetchFile copies an object to a local file.
func (s *FSStore) FetchFile(ctx context.Context, key, path string) error {
	obj, _, err := s.Open(ctx, key)
	if err != nil {
		return err
	}
	defer obj.Close()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &models.StorageError{Op: "fetch", Key: key, Err: err}
	}
	dst, err := os.Create(path)
	if err != nil {
		return &models.StorageError{Op: "fetch", Key: key, Err: err}
	}
	defer dst.Close()
	if _, err := io.Copy(dst, obj); err != nil {
		return &models.StorageError{Op: "fetch", Key: key, Err: err}
	}
	return nil
}

// List returns all keys under a prefix in lexical order.
func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, filepath.Clean("/"+prefix))
	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, &models.StorageError{Op: "list", Key: prefix, Err: err}
	}
	sort.Strings(keys)
	return keys, nil
}

// RemovePrefix deletes an object subtree.
func (s *FSStore) RemovePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.root, filepath.Clean("/"+prefix))
	if dir == s.root {
		return fmt.Errorf("refusing to remove storage root")
	}
	if err := os.RemoveAll(dir); err != nil {
		return &models.StorageError{Op: "remove", Key: prefix, Err: err}
	}
	return nil
}
