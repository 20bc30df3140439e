// Package csvsource reads delimited text in fixed-size row chunks, each
// decoded into a frame with a schema inferred from the first chunk.
package csvsource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/compression"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/schema"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

// DefaultChunkSize is the number of rows per chunk
const DefaultChunkSize = 250_000

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options configures a Reader
type Options struct {
	// Separator defaults to ','
	Separator rune
	// ChunkSize defaults to DefaultChunkSize
	ChunkSize int
	// Compression overrides detection from the file name
	Compression compression.Algorithm
	Logger      *zap.Logger
}

// Reader yields chunks of a delimited text stream as frames
type Reader struct {
	csv     *csv.Reader
	closers []io.Closer
	opts    Options
	logger  *zap.Logger
	engine  *schema.TypeInferenceEngine

	header  []string
	schema  *schema.Schema
	chunks  int
	rows    int64
	coerced int64
	widened int
	done    bool
}

// Open resolves uri through the resolver and reads it, decompressing by
// file extension
func Open(ctx context.Context, resolver *storage.Resolver, uri string, opts Options) (*Reader, error) {
	body, err := resolver.Open(ctx, uri)
	if err != nil {
		return nil, err
	}

	algo := opts.Compression
	if algo == "" {
		algo, _ = compression.Detect(uri)
	}
	decoded, err := compression.NewReader(body, algo)
	if err != nil {
		body.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open compressed input").WithDetail("uri", uri)
	}

	r, err := NewReader(decoded, opts)
	if err != nil {
		decoded.Close()
		body.Close()
		return nil, errors.Wrap(err, errors.TypeOf(err), "failed to read header").WithDetail("uri", uri)
	}
	r.closers = []io.Closer{decoded, body}
	return r, nil
}

// NewReader reads the header row from r. A leading UTF-8 byte order mark is
// dropped.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	if opts.Separator == 0 {
		opts.Separator = ','
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	log := opts.Logger
	if log == nil {
		log = logger.With(zap.String("component", "csvsource"))
	}

	br := bufio.NewReaderSize(r, 1<<20)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = opts.Separator
	cr.FieldsPerRecord = -1 // ragged rows are handled per chunk
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrorTypeData, "input has no header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse header row")
	}

	return &Reader{
		csv:    cr,
		opts:   opts,
		logger: log,
		engine: schema.NewTypeInferenceEngine(log),
		header: uniqueHeader(header),
	}, nil
}

// Header returns the column names
func (r *Reader) Header() []string { return r.header }

// Schema returns the schema inferred from the first chunk, or nil before it
func (r *Reader) Schema() *schema.Schema { return r.schema }

// Rows returns the number of data rows read so far
func (r *Reader) Rows() int64 { return r.rows }

// Coerced returns how many values failed to parse as their column type
func (r *Reader) Coerced() int64 { return r.coerced }

// Widened returns how many times a column type was promoted after the first chunk
func (r *Reader) Widened() int { return r.widened }

// Next returns the next chunk. It returns io.EOF after the last chunk. A file
// with a header and no rows yields one empty chunk of string columns.
func (r *Reader) Next(ctx context.Context) (*frame.Frame, error) {
	if r.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([][]string, 0, min(r.opts.ChunkSize, 4096))
	for len(records) < r.opts.ChunkSize {
		rec, err := r.csv.Read()
		if err == io.EOF {
			r.done = true
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse row").
				WithDetail("row", strconv.FormatInt(r.rows+int64(len(records))+1, 10))
		}
		if len(rec) > len(r.header) {
			line, _ := r.csv.FieldPos(0)
			return nil, errors.Newf(errors.ErrorTypeData, "line %d has %d fields, header has %d",
				line, len(rec), len(r.header))
		}
		records = append(records, rec)
	}

	if len(records) == 0 && r.chunks > 0 {
		return nil, io.EOF
	}

	if r.schema == nil {
		s, err := r.engine.InferSchema(r.header, records)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to infer schema")
		}
		r.schema = s
	} else {
		for _, w := range r.schema.Widen(records) {
			r.widened++
			r.logger.Warn("widened column type",
				zap.Int("chunk", r.chunks+1),
				zap.String("column", w.Name),
				zap.Stringer("from", w.From),
				zap.Stringer("to", w.To),
				zap.String("value", w.Value))
		}
	}

	f, coerced, err := r.decode(records)
	if err != nil {
		return nil, err
	}
	r.chunks++
	r.rows += int64(len(records))
	if coerced > 0 {
		r.coerced += int64(coerced)
		r.logger.Warn("values did not match the column type and were nulled",
			zap.Int("chunk", r.chunks),
			zap.Int("values", coerced))
	}
	return f, nil
}

func (r *Reader) decode(records [][]string) (*frame.Frame, int, error) {
	cols := r.schema.NewColumns(len(records))
	coerced := 0
	for _, rec := range records {
		for i, field := range r.schema.Fields {
			if i >= len(rec) {
				cols[i].AppendNull()
				continue
			}
			if !field.Append(cols[i], rec[i]) {
				coerced++
			}
		}
	}
	f, err := frame.New(cols...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to assemble chunk")
	}
	return f, coerced, nil
}

// Close closes the underlying streams
func (r *Reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

// ReadAll reads every chunk into one frame
func (r *Reader) ReadAll(ctx context.Context) (*frame.Frame, error) {
	var frames []*frame.Frame
	for {
		f, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frame.Concat(frames...)
}

// uniqueHeader names blank columns "Unnamed: i" and suffixes repeats with .1, .2
func uniqueHeader(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	repeats := make(map[string]int)
	for i, name := range header {
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		base := name
		for used[name] {
			repeats[base]++
			name = base + "." + strconv.Itoa(repeats[base])
		}
		used[name] = true
		out[i] = name
	}
	return out
}
