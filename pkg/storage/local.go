package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

// LocalStore keeps objects as files. Keys are filesystem paths, or paths
// relative to root when the store is rooted.
type LocalStore struct {
	root string
}

// NewLocalStore returns a filesystem store
func NewLocalStore() *LocalStore { return &LocalStore{} }

// NewLocalStoreAt returns a store whose keys live under root. It stands in
// for a bucket in tests and local runs.
func NewLocalStoreAt(root string) *LocalStore { return &LocalStore{root: root} }

func (s *LocalStore) path(key string) string {
	if s.root == "" {
		return key
	}
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if strings.HasSuffix(key, "/") {
		p += string(filepath.Separator)
	}
	return p
}

func (s *LocalStore) key(path string) string {
	if s.root == "" {
		return path
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// Open opens a file for reading
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key)) //nolint:gosec // G304: keys come from configuration and flags
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "object not found").WithDetail("path", key)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open file").WithDetail("path", key)
	}
	return f, nil
}

// Put writes through a temporary file and renames it into place
func (s *LocalStore) Put(_ context.Context, key string, body io.Reader, _ map[string]string) error {
	path := s.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create directory").WithDetail("dir", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create temporary file").WithDetail("dir", dir)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write file").WithDetail("path", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close file").WithDetail("path", key)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to move file into place").WithDetail("path", key)
	}
	return nil
}

// List walks the directory holding prefix and returns matching file paths
func (s *LocalStore) List(_ context.Context, key string) ([]string, error) {
	prefix := s.path(key)
	root := prefix
	if !strings.HasSuffix(prefix, "/") {
		if info, err := os.Stat(prefix); err == nil && info.IsDir() {
			prefix += string(filepath.Separator)
		} else {
			root = filepath.Dir(prefix)
		}
	}

	var keys []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		if strings.HasPrefix(path, filepath.Clean(prefix)) || strings.HasPrefix(path, prefix) {
			keys = append(keys, s.key(path))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to list directory").WithDetail("prefix", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDirectories returns the subdirectories of prefix
func (s *LocalStore) ListDirectories(_ context.Context, key string) ([]string, error) {
	prefix := s.path(key)
	entries, err := os.ReadDir(prefix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read directory").WithDetail("prefix", prefix)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, s.key(filepath.Join(prefix, e.Name()))+"/")
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// DeletePrefix removes every file under prefix
func (s *LocalStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for i, key := range keys {
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			return i, errors.Wrap(err, errors.ErrorTypeFile, "failed to delete file").WithDetail("path", key)
		}
	}
	return len(keys), nil
}

// URI returns the filesystem path of key
func (s *LocalStore) URI(key string) string { return s.path(key) }

// Close is a no-op
func (s *LocalStore) Close() error { return nil }
