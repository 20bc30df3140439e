package csvsource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wjdataeng/tractfeatures/pkg/compression"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

func cbpRows(n int) string {
	var b strings.Builder
	b.WriteString("fipstate,fipscty,naics,emp\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "24,%03d,------,%d\n", i%600, i*10)
	}
	return b.String()
}

func drain(t *testing.T, r *Reader) []*frame.Frame {
	t.Helper()
	var out []*frame.Frame
	for {
		f, err := r.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func TestChunking(t *testing.T) {
	for _, size := range []int{1, 7, 10, 1000} {
		t.Run(fmt.Sprintf("chunk=%d", size), func(t *testing.T) {
			r, err := NewReader(strings.NewReader(cbpRows(10)), Options{ChunkSize: size, Logger: zaptest.NewLogger(t)})
			require.NoError(t, err)

			total := 0
			chunks := drain(t, r)
			for _, f := range chunks {
				assert.LessOrEqual(t, f.NumRows(), size)
				total += f.NumRows()
			}
			assert.Equal(t, 10, total)
			assert.Equal(t, int64(10), r.Rows())
			assert.Equal(t, (10+size-1)/size, len(chunks))
		})
	}
}

func TestSchemaFromFirstChunk(t *testing.T) {
	data := "id,code,v\n1,001,1.5\n2,002,2\n3,003,x\n"
	r, err := NewReader(strings.NewReader(data), Options{ChunkSize: 2, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	chunks := drain(t, r)
	require.Len(t, chunks, 2)
	assert.Equal(t, "id:int64,code:string,v:string", r.Schema().String())

	v, _ := chunks[1].Column("v")
	assert.Equal(t, frame.String, v.Type)
	assert.Equal(t, "x", v.StringAt(0), "a value that does not fit widens the column")
	assert.Equal(t, int64(0), r.Coerced())
	assert.Equal(t, 1, r.Widened())

	code, _ := chunks[0].Column("code")
	assert.Equal(t, "001", code.StringAt(0), "leading zeros survive")
}

func TestLaterChunksWiden(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		schema string
		column string
		want   interface{}
	}{
		{"leading zero code", "code,val\n1,10\n007,3\n", "code:string,val:int64", "code", "007"},
		{"fraction in int column", "code,val\n1,10\n2,2.5\n", "code:int64,val:float64", "val", 2.5},
		{"text in float column", "code,val\n1,1.5\n2,n/a\n", "code:int64,val:string", "val", "n/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(strings.NewReader(tt.data), Options{ChunkSize: 1, Logger: zaptest.NewLogger(t)})
			require.NoError(t, err)

			chunks := drain(t, r)
			require.Len(t, chunks, 2)
			assert.Equal(t, tt.schema, r.Schema().String())
			assert.Equal(t, int64(0), r.Coerced())

			col, _ := chunks[1].Column(tt.column)
			require.False(t, col.IsNull(0))
			switch want := tt.want.(type) {
			case string:
				assert.Equal(t, want, col.StringAt(0))
			case float64:
				assert.Equal(t, want, col.FloatAt(0))
			}
		})
	}
}

func TestBOMAndSeparator(t *testing.T) {
	data := "\xEF\xBB\xBFGEOID|count\n24510010100|3\n"
	r, err := NewReader(strings.NewReader(data), Options{Separator: '|'})
	require.NoError(t, err)
	assert.Equal(t, []string{"GEOID", "count"}, r.Header())

	f, err := r.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.NumRows())
}

func TestRaggedRows(t *testing.T) {
	r, err := NewReader(strings.NewReader("a,b,c\n1,2\n4,5,6\n"), Options{})
	require.NoError(t, err)
	f, err := r.ReadAll(context.Background())
	require.NoError(t, err)
	c, _ := f.Column("c")
	assert.True(t, c.IsNull(0))

	r, err = NewReader(strings.NewReader("a,b\n1,2,3\n"), Options{})
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestHeaderOnly(t *testing.T) {
	r, err := NewReader(strings.NewReader("a,b\n"), Options{})
	require.NoError(t, err)
	chunks := drain(t, r)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].NumRows())
	assert.Equal(t, []string{"a", "b"}, chunks[0].Names())

	_, err = NewReader(strings.NewReader(""), Options{})
	assert.Error(t, err)
}

func TestUniqueHeader(t *testing.T) {
	assert.Equal(t, []string{"a", "a.1", "Unnamed: 2", "a.2"}, uniqueHeader([]string{"a", "a", "", "a"}))
}

func TestOpenCompressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cbp23co.txt.gz")

	var buf bytes.Buffer
	w, err := compression.NewWriter(&buf, compression.Gzip)
	require.NoError(t, err)
	_, err = w.Write([]byte(cbpRows(5)))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	res := storage.NewResolver(storage.Options{})
	defer res.Close()
	r, err := Open(context.Background(), res, path, Options{})
	require.NoError(t, err)
	defer r.Close()

	f, err := r.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, f.NumRows())
}

func TestNextHonorsContext(t *testing.T) {
	r, err := NewReader(strings.NewReader(cbpRows(3)), Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
