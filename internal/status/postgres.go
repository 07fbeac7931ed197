package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // Registers the postgres driver.
)

const (
	// defaultTable is the sources table owned by the admin application.
	defaultTable = "crawl_sources"
	// defaultActor is the identity recorded on status writes made by the crawler.
	defaultActor = "crawler"
)

// ErrUnknownSource indicates that a status write addressed a source record that does
// not exist.
var ErrUnknownSource = errors.New("unknown source")

var _ Sink = (*PostgresSink)(nil)

// PostgresSink persists status updates into the admin application's sources table.
//
// The connection is validated lazily on the first write; constructing a sink does not
// require the database to be reachable.
type PostgresSink struct {
	db    *sql.DB
	table string
	actor string
}

// NewPostgresSink opens a postgres-backed sink from a connection string.
func NewPostgresSink(dsn string, opts ...PostgresSinkOption) (*PostgresSink, error) {
	if dsn == "" {
		return nil, errors.New("missing postgres dsn")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open postgres connection: %w", err)
	}

	s := &PostgresSink{
		db:    db,
		table: defaultTable,
		actor: defaultActor,
	}

	for _, opt := range opts {
		opt.applyPostgresSinkOption(s)
	}

	return s, nil
}

// Update implements Sink.
func (s *PostgresSink) Update(ctx context.Context, sourceID string, u Update) error {
	// COALESCE keeps the previously indexed count when a snapshot does not carry one,
	// and NULLIF avoids overwriting an error message with an empty string.
	query := fmt.Sprintf(`
		UPDATE %s
		SET crawl_status = $1,
		    last_crawled = $2,
		    pages_indexed = COALESCE($3, pages_indexed),
		    error_message = NULLIF($4, ''),
		    updated_by = $5
		WHERE id = $6`, s.table)

	var pagesIndexed sql.NullInt64
	if u.PagesIndexed != nil {
		pagesIndexed = sql.NullInt64{Int64: int64(*u.PagesIndexed), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, query,
		string(u.Status),
		u.LastCrawled,
		pagesIndexed,
		u.ErrorMessage,
		s.actor,
		sourceID,
	)
	if err != nil {
		return fmt.Errorf("could not update crawl status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not update crawl status: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close() // nolint: wrapcheck
}

// PostgresSinkOption is option to set up PostgresSink.
type PostgresSinkOption interface {
	applyPostgresSinkOption(s *PostgresSink)
}

type postgresSinkOptionFunc func(s *PostgresSink)

func (f postgresSinkOptionFunc) applyPostgresSinkOption(s *PostgresSink) {
	f(s)
}

// WithTable sets the sources table name.
func WithTable(table string) PostgresSinkOption {
	return postgresSinkOptionFunc(func(s *PostgresSink) {
		s.table = table
	})
}

// WithActor sets the identity recorded on status writes.
func WithActor(actor string) PostgresSinkOption {
	return postgresSinkOptionFunc(func(s *PostgresSink) {
		s.actor = actor
	})
}
