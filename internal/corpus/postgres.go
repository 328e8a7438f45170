package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/postgres"
)

// PostgresSource streams documents from a table with one text column per
// field plus a doc_id column. Rows are read inside a read-only snapshot so
// concurrent writers cannot tear the corpus.
type PostgresSource struct {
	tx     *sql.Tx
	rows   *sql.Rows
	fields []string
	logger *slog.Logger
}

// NewPostgresSource starts streaming table ordered by doc_id. fields names
// the text columns to read; NULL columns are omitted from the record.
func NewPostgresSource(ctx context.Context, client *postgres.Client, table string, fields []string) (*PostgresSource, error) {
	if table == "" || len(fields) == 0 {
		return nil, fmt.Errorf("postgres source needs a table and at least one field")
	}
	tx, err := client.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, selectDocuments(table, fields))
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	return &PostgresSource{
		tx:     tx,
		rows:   rows,
		fields: fields,
		logger: slog.Default().With("component", "postgres-source", "table", table),
	}, nil
}

func selectDocuments(table string, fields []string) string {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, pq.QuoteIdentifier(IDField))
	for _, f := range fields {
		cols = append(cols, pq.QuoteIdentifier(f))
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), quoteTable(table), pq.QuoteIdentifier(IDField))
}

// quoteTable quotes an optionally schema-qualified table name.
func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// Next returns the next row. Rows with a NULL or empty doc_id are skipped
// with a warning.
func (p *PostgresSource) Next(ctx context.Context) (Record, error) {
	values := make([]sql.NullString, len(p.fields)+1)
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	for {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		if !p.rows.Next() {
			if err := p.rows.Err(); err != nil {
				return Record{}, fmt.Errorf("reading rows: %w", err)
			}
			return Record{}, io.EOF
		}
		if err := p.rows.Scan(dest...); err != nil {
			return Record{}, fmt.Errorf("scanning row: %w", err)
		}
		id := strings.TrimSpace(values[0].String)
		if id == "" {
			p.logger.Warn("row without doc_id skipped")
			continue
		}
		fields := map[string]string{IDField: id}
		for i, f := range p.fields {
			if v := values[i+1]; v.Valid {
				fields[f] = v.String
			}
		}
		return Record{Fields: fields}, nil
	}
}

// Close releases the cursor and ends the snapshot.
func (p *PostgresSource) Close() error {
	rowsErr := p.rows.Close()
	if err := p.tx.Commit(); err != nil {
		return fmt.Errorf("ending snapshot: %w", err)
	}
	return rowsErr
}
