package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjdataeng/tractfeatures/pkg/config"
	"github.com/wjdataeng/tractfeatures/pkg/dataset"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

func setup(t *testing.T) (*Converter, *dataset.Client, string) {
	t.Helper()
	lake := t.TempDir()
	r := storage.NewResolver(storage.Options{})
	r.Register(storage.S3, "lake", storage.NewLocalStoreAt(lake))
	t.Cleanup(func() { _ = r.Close() })
	ds := dataset.New(r, nil)
	return NewConverter(ds), ds, lake
}

func writeRaw(t *testing.T, lake, key string, rows int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("fipstate,fipscty,naics,emp,ap\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "24,%03d,%d,%d,%d.5\n", i%510, 100000+i, i, i)
	}
	path := filepath.Join(lake, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
}

func TestConvertKeepsRowCountForAnyChunkSize(t *testing.T) {
	const rows = 103
	for _, size := range []int{1, 10, 50, 103, 104, 250_000} {
		t.Run(fmt.Sprintf("chunk=%d", size), func(t *testing.T) {
			c, ds, lake := setup(t)
			writeRaw(t, lake, "raw/cbp23co.txt", rows)
			ctx := context.Background()

			res, err := c.ConvertCSVDataset(ctx, "s3://lake/raw/cbp23co.txt", "s3://lake/clean/cbp/23co/",
				Options{ChunkSize: size, Separator: ","})
			require.NoError(t, err)
			assert.Equal(t, int64(rows), res.Rows)
			assert.Equal(t, (rows+size-1)/size, res.Chunks)

			f, err := ds.Read(ctx, "s3://lake/clean/cbp/23co/")
			require.NoError(t, err)
			assert.Equal(t, rows, f.NumRows())

			parts, err := ds.Parts(ctx, "s3://lake/clean/cbp/23co/")
			require.NoError(t, err)
			assert.Len(t, parts, res.Chunks)
		})
	}
}

func TestConvertValuesDoNotDependOnChunkSize(t *testing.T) {
	c, ds, lake := setup(t)
	data := "id,code,val\n1,1,10\n2,007,2.5\n3,12,3\n4,,x\n"
	path := filepath.Join(lake, "raw", "codes.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	ctx := context.Background()

	// part files are read back in key order, so rows are keyed by id
	cells := func(uri string) map[string][2]string {
		f, err := ds.Read(ctx, uri)
		require.NoError(t, err)
		ids, _ := f.Column("id")
		codes, _ := f.Column("code")
		vals, _ := f.Column("val")
		out := make(map[string][2]string, f.NumRows())
		for i := 0; i < f.NumRows(); i++ {
			id, _ := ids.Format(i)
			code, _ := codes.Format(i)
			val, _ := vals.Format(i)
			out[id] = [2]string{code, val}
		}
		return out
	}

	want := map[string][2]string{
		"1": {"1", "10"},
		"2": {"007", "2.5"},
		"3": {"12", "3"},
		"4": {"", "x"},
	}
	for _, size := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("chunk=%d", size), func(t *testing.T) {
			dest := fmt.Sprintf("s3://lake/clean/codes/%d/", size)
			res, err := c.ConvertCSVDataset(ctx, "s3://lake/raw/codes.csv", dest, Options{ChunkSize: size})
			require.NoError(t, err)
			assert.Equal(t, int64(0), res.Coerced)
			assert.Equal(t, want, cells(dest))
		})
	}
}

func TestConvertAppendsByDefault(t *testing.T) {
	c, ds, lake := setup(t)
	writeRaw(t, lake, "raw/pppub24.csv", 20)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.ConvertCSVDataset(ctx, "s3://lake/raw/pppub24.csv", "s3://lake/clean/asec/pppub24/", Options{ChunkSize: 8})
		require.NoError(t, err)
	}
	f, err := ds.Read(ctx, "s3://lake/clean/asec/pppub24/")
	require.NoError(t, err)
	assert.Equal(t, 40, f.NumRows(), "a second run appends")

	_, err = c.ConvertCSVDataset(ctx, "s3://lake/raw/pppub24.csv", "s3://lake/clean/asec/pppub24/",
		Options{ChunkSize: 8, Replace: true})
	require.NoError(t, err)
	f, err = ds.Read(ctx, "s3://lake/clean/asec/pppub24/")
	require.NoError(t, err)
	assert.Equal(t, 20, f.NumRows(), "replace clears the destination first")
}

func TestConvertPreservesCodes(t *testing.T) {
	c, ds, lake := setup(t)
	writeRaw(t, lake, "raw/zbp23detail.txt", 5)
	ctx := context.Background()

	res, err := c.ConvertCSVDataset(ctx, "s3://lake/raw/zbp23detail.txt", "s3://lake/clean/zbp/23detail/", Options{})
	require.NoError(t, err)
	assert.Equal(t, "fipstate:int64,fipscty:string,naics:int64,emp:int64,ap:float64", res.Schema)

	f, err := ds.Read(ctx, "s3://lake/clean/zbp/23detail/")
	require.NoError(t, err)
	cty, ok := f.Column("fipscty")
	require.True(t, ok)
	assert.Equal(t, "000", cty.StringAt(0))
}

func TestConvertMissingSource(t *testing.T) {
	c, _, _ := setup(t)
	_, err := c.ConvertCSVDataset(context.Background(), "s3://lake/raw/none.csv", "s3://lake/clean/none/", Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestRunJobs(t *testing.T) {
	c, ds, lake := setup(t)
	writeRaw(t, lake, "raw/cbp23co.txt", 7)
	writeRaw(t, lake, "raw/cbp23msa.txt", 3)

	cfg := config.New(t.TempDir())
	cfg.Storage.Raw = "s3://lake/raw"
	cfg.Storage.Clean = "s3://lake/clean"
	cfg.Convert.ChunkSize = 2

	jobs := []config.ConvertJob{
		{Source: "cbp23co.txt", Dest: "cbp/23co/", Separator: ","},
		{Source: "cbp23msa.txt", Dest: "cbp/23msa/", Separator: ","},
	}
	results, err := c.RunJobs(context.Background(), cfg, jobs, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(7), results[0].Rows)
	assert.Equal(t, 4, results[0].Chunks)

	f, err := ds.Read(context.Background(), "s3://lake/clean/cbp/23msa/")
	require.NoError(t, err)
	assert.Equal(t, 3, f.NumRows())

	jobs = append(jobs, config.ConvertJob{Source: "missing.txt", Dest: "x/"})
	results, err = c.RunJobs(context.Background(), cfg, jobs, true)
	assert.Error(t, err)
	assert.Len(t, results, 2)
}

func TestSeparator(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", ',', false},
		{",", ',', false},
		{"|", '|', false},
		{`\t`, '\t', false},
		{"tab", '\t', false},
		{";;", 0, true},
		{`"`, 0, true},
	}
	for _, tt := range tests {
		got, err := separator(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
