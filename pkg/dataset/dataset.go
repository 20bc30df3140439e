// Package dataset reads and writes Parquet datasets: directory prefixes on
// an object store holding one or more part files that together form a table.
package dataset

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/formats/columnar"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

// Mode selects how Write treats existing part files
type Mode string

const (
	// ModeOverwrite removes existing part files before writing
	ModeOverwrite Mode = "overwrite"
	// ModeAppend adds a part file next to existing ones
	ModeAppend Mode = "append"
)

// ParquetExt is the part file extension
const ParquetExt = ".parquet"

// Dir is a child directory of a dataset root
type Dir struct {
	Name string
	URI  string
}

// WriteResult describes one Write call
type WriteResult struct {
	URI     string
	Rows    int
	Bytes   int
	Removed int
}

// encodeFrame is replaced in tests to force encode failures
var encodeFrame = columnar.WriteFrame

// Client reads and writes datasets through a storage resolver
type Client struct {
	resolver *storage.Resolver
	writer   *columnar.WriterConfig
	logger   *zap.Logger
}

// New creates a dataset client. A nil writer config uses the columnar defaults.
func New(resolver *storage.Resolver, writer *columnar.WriterConfig) *Client {
	if writer == nil {
		writer = columnar.DefaultWriterConfig()
	}
	return &Client{
		resolver: resolver,
		writer:   writer,
		logger:   logger.With(zap.String("component", "dataset")),
	}
}

// Resolver returns the storage resolver behind the client
func (c *Client) Resolver() *storage.Resolver { return c.resolver }

// Write encodes f as one part file under the dataset prefix uri
func (c *Client) Write(ctx context.Context, uri string, f *frame.Frame, mode Mode) (*WriteResult, error) {
	if f == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "nil frame")
	}
	if mode != ModeOverwrite && mode != ModeAppend {
		return nil, errors.Newf(errors.ErrorTypeValidation, "unknown write mode %q", mode)
	}

	loc, err := storage.ParseURI(dirURI(uri))
	if err != nil {
		return nil, err
	}
	store, prefix, err := c.resolver.Resolve(ctx, loc.String())
	if err != nil {
		return nil, err
	}

	// encode first so a failed encode leaves an overwritten dataset intact
	var buf bytes.Buffer
	if err := encodeFrame(&buf, f, c.writer); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode parquet").WithDetail("uri", uri)
	}
	result := &WriteResult{Rows: f.NumRows(), Bytes: buf.Len()}

	if mode == ModeOverwrite {
		removed, err := store.DeletePrefix(ctx, prefix)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to clear dataset").WithDetail("uri", uri)
		}
		result.Removed = removed
	}

	key := prefix + "part-" + uuid.New().String() + ParquetExt
	start := time.Now()
	if err := store.Put(ctx, key, &buf, map[string]string{"rows": strconv.Itoa(f.NumRows())}); err != nil {
		return nil, err
	}
	result.URI = childURI(loc, key)

	c.logger.Debug("wrote dataset part",
		zap.String("uri", result.URI),
		zap.String("mode", string(mode)),
		zap.Int("rows", result.Rows),
		zap.Int("bytes", result.Bytes),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// Parts lists the part file URIs of a dataset in key order
func (c *Client) Parts(ctx context.Context, uri string) ([]string, error) {
	loc, err := storage.ParseURI(dirURI(uri))
	if err != nil {
		return nil, err
	}
	store, prefix, err := c.resolver.Resolve(ctx, loc.String())
	if err != nil {
		return nil, err
	}
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, k := range keys {
		if strings.HasSuffix(k, ParquetExt) {
			parts = append(parts, childURI(loc, k))
		}
	}
	return parts, nil
}

// Read decodes every part file of a dataset into one frame. Part files with
// differing numeric types are promoted to a common type.
func (c *Client) Read(ctx context.Context, uri string) (*frame.Frame, error) {
	parts, err := c.Parts(ctx, uri)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no parquet files under %s", uri)
	}

	frames := make([]*frame.Frame, 0, len(parts))
	for _, part := range parts {
		f, err := c.readPart(ctx, part)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frame.Concat(frames...)
}

func (c *Client) readPart(ctx context.Context, uri string) (*frame.Frame, error) {
	r, err := c.resolver.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	f, err := columnar.ReadFrame(r, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode parquet part").WithDetail("uri", uri)
	}
	return f, nil
}

// ListDirs returns the immediate child directories of root sorted by name
func (c *Client) ListDirs(ctx context.Context, root string) ([]Dir, error) {
	loc, err := storage.ParseURI(dirURI(root))
	if err != nil {
		return nil, err
	}
	store, prefix, err := c.resolver.Resolve(ctx, loc.String())
	if err != nil {
		return nil, err
	}
	children, err := store.ListDirectories(ctx, prefix)
	if err != nil {
		return nil, err
	}

	dirs := make([]Dir, 0, len(children))
	for _, child := range children {
		dirs = append(dirs, Dir{Name: storage.Base(child), URI: childURI(loc, child)})
	}
	return dirs, nil
}

func dirURI(uri string) string {
	if strings.HasSuffix(uri, "/") {
		return uri
	}
	return uri + "/"
}

func childURI(parent storage.Location, key string) string {
	return storage.Location{Scheme: parent.Scheme, Bucket: parent.Bucket, Key: key}.String()
}
