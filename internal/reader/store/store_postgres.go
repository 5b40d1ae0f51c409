package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"domainreader/internal/reader/model"
	txcontext "domainreader/pkg/platform/tx"
)

const (
	codeUndefinedColumn = "42703"
	codeUndefinedTable  = "42P01"
)

// PostgresStore executes reader queries on a pooled connection inside a
// read-only transaction. A transaction already carried by the context is
// joined instead.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Query runs q and shapes every row through m.
func (s *PostgresStore) Query(ctx context.Context, m *model.Model, q model.Query) ([]model.Row, error) {
	var out []model.Row
	err := s.readOnly(ctx, func(ctx context.Context, db queryer) error {
		rows, err := db.QueryContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		width := len(m.Aliases())
		for rows.Next() {
			values := make([]any, width)
			dest := make([]any, width)
			for i := range values {
				dest[i] = &values[i]
			}
			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("scan %s row: %w", m.Table(), err)
			}
			row, err := m.NewRow(values)
			if err != nil {
				return err
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, translate(m.Table(), err)
	}
	return out, nil
}

// Count runs a single-value count query.
func (s *PostgresStore) Count(ctx context.Context, q model.Query) (int64, error) {
	var n int64
	err := s.readOnly(ctx, func(ctx context.Context, db queryer) error {
		return db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&n)
	})
	if err != nil {
		return 0, translate("", err)
	}
	return n, nil
}

func (s *PostgresStore) readOnly(ctx context.Context, fn func(context.Context, queryer) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(ctx, tx)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	return txcontext.Run(ctx, conn, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, tx)
	})
}

// translate turns undefined column and table errors into binding errors.
func translate(table string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUndefinedColumn:
		if pgErr.TableName != "" {
			table = pgErr.TableName
		}
		return &model.BindingError{Table: table, Column: quotedName(pgErr.Message), Err: err}
	case codeUndefinedTable:
		name := quotedName(pgErr.Message)
		if name == "" {
			name = table
		}
		return &model.BindingError{Table: name, Err: err}
	default:
		return err
	}
}

// quotedName extracts the first double-quoted name from a server message
// such as `column "customer_name" does not exist`.
func quotedName(msg string) string {
	start := strings.IndexByte(msg, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(msg[start+1:], '"')
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
