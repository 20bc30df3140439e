// Package columnar encodes frames as Apache Parquet and decodes Parquet
// files into frames.
package columnar

import (
	"io"

	"github.com/wjdataeng/tractfeatures/pkg/frame"
)

// WriterConfig configures the Parquet writer
type WriterConfig struct {
	// Compression is snappy, gzip, zstd or none
	Compression    string
	PageSize       int
	RowGroupSize   int64
	DictionarySize int
	// Metadata is written to the file footer key-value metadata
	Metadata map[string]string
}

// DefaultWriterConfig returns default writer configuration
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Compression:    "snappy",
		PageSize:       1024 * 1024,
		RowGroupSize:   256 * 1024,
		DictionarySize: 1024 * 1024,
	}
}

// ReaderConfig configures the Parquet reader
type ReaderConfig struct {
	// Projection limits decoding to these columns; empty reads all
	Projection []string
}

// File is a decoded Parquet file
type File struct {
	Frame *frame.Frame
	// Metadata holds the file key-value metadata, e.g. the GeoParquet "geo" entry
	Metadata map[string]string
}

// WriteFrame encodes f as a single Parquet file
func WriteFrame(w io.Writer, f *frame.Frame, config *WriterConfig) error {
	if config == nil {
		config = DefaultWriterConfig()
	}
	pw, err := newParquetWriter(w, f, config)
	if err != nil {
		return err
	}
	if err := pw.Write(f); err != nil {
		_ = pw.Close()
		return err
	}
	return pw.Close()
}

// ReadFile decodes a whole Parquet file
func ReadFile(r io.Reader, config *ReaderConfig) (*File, error) {
	if config == nil {
		config = &ReaderConfig{}
	}
	return readParquet(r, config)
}

// ReadFrame decodes a whole Parquet file into a frame
func ReadFrame(r io.Reader, config *ReaderConfig) (*frame.Frame, error) {
	file, err := ReadFile(r, config)
	if err != nil {
		return nil, err
	}
	return file.Frame, nil
}
