// Package publish loads the curated tract features table into warehouses:
// Postgres through COPY and BigQuery through a load job over the curated
// Parquet files.
package publish

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
)

const (
	postgresMaxConns       = 2
	postgresConnectTimeout = 30 * time.Second
)

// PostgresResult describes one table load
type PostgresResult struct {
	Table string
	Rows  int64
}

// PublishPostgres replaces table with the contents of f. The drop, create
// and COPY run in one transaction.
func PublishPostgres(ctx context.Context, dsn, table string, f *frame.Frame) (*PostgresResult, error) {
	if dsn == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgres dsn is required")
	}
	if table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgres table is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse PostgreSQL connection string")
	}
	cfg.MaxConns = postgresMaxConns
	cfg.ConnConfig.ConnectTimeout = postgresConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create PostgreSQL connection pool")
	}
	defer pool.Close()

	log := logger.With(zap.String("component", "publish_postgres"),
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
		zap.String("table", table))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	ident := tableIdentifier(table)
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to drop table").WithDetail("table", table)
	}
	if _, err := tx.Exec(ctx, CreateTableSQL(ident, f)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create table").WithDetail("table", table)
	}

	rows, err := tx.CopyFrom(ctx, ident, f.Names(), NewFrameSource(f))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to copy rows").WithDetail("table", table)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to commit").WithDetail("table", table)
	}

	log.Info("published to postgres", zap.Int64("rows", rows))
	return &PostgresResult{Table: table, Rows: rows}, nil
}

// tableIdentifier splits an optional schema qualifier
func tableIdentifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// CreateTableSQL renders the CREATE TABLE statement for f's columns
func CreateTableSQL(ident pgx.Identifier, f *frame.Frame) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(ident.Sanitize())
	b.WriteString(" (")
	for i, c := range f.Columns() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{c.Name}.Sanitize())
		b.WriteByte(' ')
		b.WriteString(postgresType(c.Type))
	}
	b.WriteString(")")
	return b.String()
}

func postgresType(t frame.Type) string {
	switch t {
	case frame.Int64:
		return "bigint"
	case frame.Float64:
		return "double precision"
	case frame.Bool:
		return "boolean"
	default:
		return "text"
	}
}

// FrameSource streams frame rows to CopyFrom
type FrameSource struct {
	f   *frame.Frame
	row int
}

// NewFrameSource returns a pgx.CopyFromSource over f
func NewFrameSource(f *frame.Frame) *FrameSource {
	return &FrameSource{f: f, row: -1}
}

// Next advances to the next row
func (s *FrameSource) Next() bool {
	s.row++
	return s.row < s.f.NumRows()
}

// Values returns the current row
func (s *FrameSource) Values() ([]any, error) {
	cols := s.f.Columns()
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = c.Value(s.row)
	}
	return out, nil
}

// Err is always nil; frames are fully in memory
func (s *FrameSource) Err() error { return nil }

var _ pgx.CopyFromSource = (*FrameSource)(nil)
