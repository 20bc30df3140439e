// Package storage is the object store abstraction behind every job. A URI
// selects the backend: s3://bucket/key, gs://bucket/key, file:///path or a
// bare local path. Keys ending in "/" name directory-like prefixes.
package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

// Scheme identifies a storage backend
type Scheme string

const (
	// Local is the local filesystem
	Local Scheme = "file"
	// S3 is Amazon S3
	S3 Scheme = "s3"
	// GCS is Google Cloud Storage
	GCS Scheme = "gs"
)

// Store is an object store rooted at one bucket or filesystem
type Store interface {
	// Open streams an object. A missing object is an ErrorTypeNotFound error.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Put writes an object, replacing any existing one
	Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error
	// List returns every object key under prefix, recursively, sorted
	List(ctx context.Context, prefix string) ([]string, error)
	// ListDirectories returns the immediate child prefixes of prefix, each ending in "/"
	ListDirectories(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix removes every object under prefix and returns how many were removed
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// URI renders a key as a full URI
	URI(key string) string
	// Close releases clients
	Close() error
}

// Location is a parsed storage URI
type Location struct {
	Scheme Scheme
	Bucket string
	Key    string
}

// ParseURI splits a storage URI. Anything without a scheme is a local path.
func ParseURI(uri string) (Location, error) {
	if uri == "" {
		return Location{}, errors.New(errors.ErrorTypeValidation, "empty storage URI")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: Local, Key: uri}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, errors.Wrap(err, errors.ErrorTypeValidation, "invalid storage URI").
			WithDetail("uri", uri)
	}

	switch Scheme(u.Scheme) {
	case S3, GCS:
		if u.Host == "" {
			return Location{}, errors.Newf(errors.ErrorTypeValidation, "storage URI %q has no bucket", uri)
		}
		// Keep the raw path so keys with spaces or parentheses survive
		key := strings.TrimPrefix(uri, u.Scheme+"://"+u.Host)
		return Location{Scheme: Scheme(u.Scheme), Bucket: u.Host, Key: strings.TrimPrefix(key, "/")}, nil
	case Local:
		return Location{Scheme: Local, Key: strings.TrimPrefix(uri, "file://")}, nil
	default:
		return Location{}, errors.Newf(errors.ErrorTypeCapability, "unsupported storage scheme %q", u.Scheme).
			WithDetail("uri", uri)
	}
}

// String renders the location back to a URI
func (l Location) String() string {
	if l.Scheme == Local {
		return l.Key
	}
	return string(l.Scheme) + "://" + l.Bucket + "/" + l.Key
}

// IsDir reports whether the URI names a directory-like prefix
func IsDir(uri string) bool { return strings.HasSuffix(uri, "/") }

// Join appends path elements to a URI with single slashes
func Join(uri string, elems ...string) string {
	out := uri
	for _, e := range elems {
		out = strings.TrimSuffix(out, "/") + "/" + strings.TrimPrefix(e, "/")
	}
	return out
}

// Base returns the last element of a key, ignoring a trailing slash
func Base(key string) string {
	key = strings.TrimSuffix(key, "/")
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Options configures the cloud clients
type Options struct {
	Region             string
	GCSCredentialsFile string
	UploadPartSize     int64
	UploadConcurrency  int
}

// Resolver maps URIs to stores, reusing one store per bucket
type Resolver struct {
	opts   Options
	mu     sync.Mutex
	stores map[string]Store
}

// NewResolver creates a resolver with the given client options
func NewResolver(opts Options) *Resolver {
	return &Resolver{opts: opts, stores: make(map[string]Store)}
}

// Resolve returns the store for a URI and the key within it
func (r *Resolver) Resolve(ctx context.Context, uri string) (Store, string, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, "", err
	}

	id := string(loc.Scheme) + "://" + loc.Bucket
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[id]; ok {
		return s, loc.Key, nil
	}

	var s Store
	switch loc.Scheme {
	case Local:
		s = NewLocalStore()
	case S3:
		s, err = NewS3Store(ctx, loc.Bucket, r.opts)
	case GCS:
		s, err = NewGCSStore(ctx, loc.Bucket, r.opts)
	}
	if err != nil {
		return nil, "", err
	}
	r.stores[id] = s
	return s, loc.Key, nil
}

// Register installs a store for a scheme and bucket, replacing the default backend
func (r *Resolver) Register(scheme Scheme, bucket string, s Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[string(scheme)+"://"+bucket] = s
}

// Open is a convenience that resolves and opens an object
func (r *Resolver) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	s, key, err := r.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, key)
}

// Close closes every store opened by the resolver
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for id, s := range r.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.stores, id)
	}
	return first
}
