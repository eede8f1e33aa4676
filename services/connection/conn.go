// Package connection opens typed, serialized connections to target instances.
package connection

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"dbaccountsync/pkg/errs"
)

// Row is one result row keyed by lower-cased column name.
// Text values are returned as string, never []byte.
type Row map[string]any

// String returns the column as a string ("" for NULL).
func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Bool interprets numeric, boolean and Y/N columns.
func (r Row) Bool(key string) bool {
	switch v := scalar(r[key]).(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int32:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "Y", "YES", "TRUE", "T", "1":
			return true
		}
	}
	return false
}

// Int64 returns the column as an integer (0 for NULL or unparsable values).
func (r Row) Int64(key string) int64 {
	switch v := scalar(r[key]).(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil {
			return n
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return int64(f)
		}
	}
	return 0
}

// scalar unwraps driver-specific text types such as godror.Number into a
// plain string.
func scalar(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int32, int64, float64:
		return v
	case fmt.Stringer:
		return t.String()
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}

// IsNull reports whether the column is NULL or absent.
func (r Row) IsNull(key string) bool {
	return r[key] == nil
}

// Conn is a connection bound to one instance. Operations are serialized.
type Conn interface {
	Dialect() string
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	Close() error
}

type sqlConn struct {
	db           *sql.DB
	dialect      string
	queryTimeout time.Duration
	mu           sync.Mutex
}

// Wrap adapts an open *sql.DB into a Conn. The pool is limited to one connection.
func Wrap(db *sql.DB, dialect string, queryTimeout time.Duration) Conn {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &sqlConn{db: db, dialect: dialect, queryTimeout: queryTimeout}
}

func (c *sqlConn) Dialect() string {
	return c.dialect
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrQueryFailed, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrQueryFailed, err)
	}
	return out, nil
}

func (c *sqlConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = strings.ToLower(c)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[keys[i]] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
