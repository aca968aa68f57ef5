package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB answers QueryRow calls in order and records Exec calls.
type fakeDB struct {
	rows    []pgx.Row
	execTag pgconn.CommandTag
	execErr error
	execs   []execCall
	queries []string
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return f.execTag, f.execErr
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("query not supported by fake")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	if len(f.rows) == 0 {
		return fakeRow{err: fmt.Errorf("unexpected query: %s", sql)}
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: got %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		if err := assign(d, r.values[i]); err != nil {
			return fmt.Errorf("scan column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, value any) error {
	switch d := dest.(type) {
	case *string:
		*d = value.(string)
	case *int:
		*d = value.(int)
	case *int64:
		*d = value.(int64)
	case *float64:
		*d = value.(float64)
	case *bool:
		*d = value.(bool)
	case *[]byte:
		if value != nil {
			*d = value.([]byte)
		}
	case *time.Time:
		*d = value.(time.Time)
	default:
		return assignNamedString(dest, value)
	}
	return nil
}

func assignNamedString(dest, value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("unsupported value %T", value)
	}
	switch d := dest.(type) {
	case *domain.BookingType:
		*d = domain.BookingType(s)
	case *domain.BookingStatus:
		*d = domain.BookingStatus(s)
	case *domain.PaymentStatus:
		*d = domain.PaymentStatus(s)
	case *domain.PaymentMethod:
		*d = domain.PaymentMethod(s)
	default:
		return fmt.Errorf("unsupported destination %T", dest)
	}
	return nil
}
