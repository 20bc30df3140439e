package columnar

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
)

// parquetWriter writes frames through an Arrow record builder
type parquetWriter struct {
	arrowSchema   *arrow.Schema
	fileWriter    *pqarrow.FileWriter
	recordBuilder *array.RecordBuilder
	metadata      map[string]string
}

func newParquetWriter(w io.Writer, f *frame.Frame, config *WriterConfig) (*parquetWriter, error) {
	arrowSchema := frameToArrowSchema(f)

	pool := memory.NewGoAllocator()
	pw := &parquetWriter{
		arrowSchema:   arrowSchema,
		recordBuilder: array.NewRecordBuilder(pool, arrowSchema),
		metadata:      config.Metadata,
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(getParquetCompression(config.Compression)),
		parquet.WithDictionaryDefault(config.DictionarySize > 0),
		parquet.WithDataPageSize(int64(config.PageSize)),
		parquet.WithMaxRowGroupLength(config.RowGroupSize),
	)

	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(pool),
	)

	fw, err := pqarrow.NewFileWriter(arrowSchema, w, props, arrowProps)
	if err != nil {
		pw.recordBuilder.Release()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create Parquet writer")
	}
	pw.fileWriter = fw
	return pw, nil
}

// Write appends every row of f
func (pw *parquetWriter) Write(f *frame.Frame) error {
	for colIdx, col := range f.Columns() {
		if err := appendColumn(pw.recordBuilder.Field(colIdx), col); err != nil {
			return err
		}
	}

	record := pw.recordBuilder.NewRecord()
	defer record.Release()

	if err := pw.fileWriter.WriteBuffered(record); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record batch").
			WithDetail("rows", record.NumRows())
	}
	return nil
}

// Close finalizes the file footer
func (pw *parquetWriter) Close() error {
	defer pw.recordBuilder.Release()
	for _, key := range sortedKeys(pw.metadata) {
		if err := pw.fileWriter.AppendKeyValueMetadata(key, pw.metadata[key]); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to set file metadata").WithDetail("key", key)
		}
	}
	if err := pw.fileWriter.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close Parquet writer")
	}
	return nil
}

func appendColumn(builder array.Builder, col *frame.Column) error {
	n := col.Len()
	builder.Reserve(n)

	switch b := builder.(type) {
	case *array.StringBuilder:
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.StringAt(i))
		}
	case *array.Int64Builder:
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.IntAt(i))
		}
	case *array.Float64Builder:
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.FloatAt(i))
		}
	case *array.BooleanBuilder:
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.BoolAt(i))
		}
	default:
		return errors.Newf(errors.ErrorTypeSchema, "unsupported builder type %T for column %q", builder, col.Name)
	}
	return nil
}

func readParquet(r io.Reader, config *ReaderConfig) (*File, error) {
	// file.NewParquetReader needs a seekable reader
	var rs parquet.ReaderAtSeeker
	if s, ok := r.(parquet.ReaderAtSeeker); ok {
		rs = s
	} else {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read Parquet data")
		}
		rs = bytes.NewReader(data)
	}

	fr, err := file.NewParquetReader(rs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open Parquet file")
	}
	defer fr.Close()

	pool := memory.NewGoAllocator()
	arrowReader, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{}, pool)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to create Arrow reader")
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read Parquet table")
	}
	defer table.Release()

	keep := make(map[string]bool, len(config.Projection))
	for _, name := range config.Projection {
		keep[name] = true
	}

	rows := int(table.NumRows())
	cols := make([]*frame.Column, 0, table.NumCols())
	for i := 0; i < int(table.NumCols()); i++ {
		field := table.Schema().Field(i)
		if len(keep) > 0 && !keep[field.Name] {
			continue
		}
		col := frame.NewColumn(field.Name, arrowToFrameType(field.Type), rows)
		for _, chunk := range table.Column(i).Data().Chunks() {
			appendArrowChunk(col, chunk)
		}
		cols = append(cols, col)
	}

	f, err := frame.New(cols...)
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]string)
	for _, kv := range fr.MetaData().KeyValueMetadata() {
		if kv.Value != nil {
			metadata[kv.Key] = *kv.Value
		}
	}
	return &File{Frame: f, Metadata: metadata}, nil
}

func appendArrowChunk(col *frame.Column, chunk arrow.Array) {
	for i := 0; i < chunk.Len(); i++ {
		if chunk.IsNull(i) {
			col.AppendNull()
			continue
		}
		switch c := chunk.(type) {
		case *array.Boolean:
			col.AppendBool(c.Value(i))
		case *array.Int8:
			col.AppendInt(int64(c.Value(i)))
		case *array.Int16:
			col.AppendInt(int64(c.Value(i)))
		case *array.Int32:
			col.AppendInt(int64(c.Value(i)))
		case *array.Int64:
			col.AppendInt(c.Value(i))
		case *array.Uint8:
			col.AppendInt(int64(c.Value(i)))
		case *array.Uint16:
			col.AppendInt(int64(c.Value(i)))
		case *array.Uint32:
			col.AppendInt(int64(c.Value(i)))
		case *array.Uint64:
			col.AppendInt(int64(c.Value(i)))
		case *array.Float32:
			col.AppendFloat(float64(c.Value(i)))
		case *array.Float64:
			col.AppendFloat(c.Value(i))
		case *array.String:
			col.AppendString(c.Value(i))
		case *array.LargeString:
			col.AppendString(c.Value(i))
		case *array.Binary:
			col.AppendString(string(c.Value(i)))
		case *array.LargeBinary:
			col.AppendString(string(c.Value(i)))
		default:
			col.AppendString(chunk.ValueStr(i))
		}
	}
}

// Schema conversion helpers

func frameToArrowSchema(f *frame.Frame) *arrow.Schema {
	fields := make([]arrow.Field, 0, f.NumCols())
	for _, col := range f.Columns() {
		fields = append(fields, arrow.Field{
			Name:     col.Name,
			Type:     frameToArrowType(col.Type),
			Nullable: true,
		})
	}
	return arrow.NewSchema(fields, nil)
}

func frameToArrowType(t frame.Type) arrow.DataType {
	switch t {
	case frame.Int64:
		return arrow.PrimitiveTypes.Int64
	case frame.Float64:
		return arrow.PrimitiveTypes.Float64
	case frame.Bool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

func arrowToFrameType(arrowType arrow.DataType) frame.Type {
	switch arrowType.ID() {
	case arrow.BOOL:
		return frame.Bool
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return frame.Int64
	case arrow.FLOAT32, arrow.FLOAT64:
		return frame.Float64
	default:
		return frame.String
	}
}

func getParquetCompression(compression string) compress.Compression {
	switch compression {
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
