// Package sqltest provides in-memory stand-ins for infra.SQLExecutor.
package sqltest

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Row scans through a function; a nil function yields pgx.ErrNoRows.
type Row struct {
	scan func(dest ...any) error
}

func NewRow(scanner func(dest ...any) error) Row {
	return Row{scan: scanner}
}

// ValuesRow returns a row that assigns values to the scan targets in order.
func ValuesRow(values ...any) Row {
	return NewRow(func(dest ...any) error { return Assign(dest, values) })
}

// ErrRow returns a row whose Scan fails with err.
func ErrRow(err error) Row {
	return NewRow(func(...any) error { return err })
}

func (r Row) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// Rows is a slice-backed pgx.Rows.
type Rows struct {
	data [][]any
	idx  int
	err  error
}

func NewRows(data ...[]any) *Rows {
	return &Rows{data: data, idx: -1}
}

func (r *Rows) Next() bool {
	if r.err != nil {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *Rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.data) {
		return fmt.Errorf("scan called without row")
	}
	return Assign(dest, r.data[r.idx])
}

func (r *Rows) Err() error { return r.err }

func (r *Rows) Close() {}

func (*Rows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (*Rows) Conn() *pgx.Conn { return nil }

func (*Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *Rows) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.data) {
		return nil, fmt.Errorf("values called without row")
	}
	return r.data[r.idx], nil
}

func (*Rows) RawValues() [][]byte { return nil }

// Assign copies values into scan destinations by reflection.
func Assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if values[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		if !v.Type().AssignableTo(elem.Type()) {
			if !v.Type().ConvertibleTo(elem.Type()) {
				return fmt.Errorf("scan: cannot assign %T to %s", values[i], elem.Type())
			}
			v = v.Convert(elem.Type())
		}
		elem.Set(v)
	}
	return nil
}

// Call records one statement sent to the Executor.
type Call struct {
	Query string
	Args  []any
}

// Executor routes statements to per-query handlers. Unhandled statements fail.
type Executor struct {
	mu       sync.Mutex
	calls    []Call
	exec     map[string]func(args []any) (pgconn.CommandTag, error)
	queryRow map[string]func(args []any) pgx.Row
	query    map[string]func(args []any) (pgx.Rows, error)
}

func NewExecutor() *Executor {
	return &Executor{
		exec:     map[string]func([]any) (pgconn.CommandTag, error){},
		queryRow: map[string]func([]any) pgx.Row{},
		query:    map[string]func([]any) (pgx.Rows, error){},
	}
}

func (e *Executor) OnExec(query string, fn func(args []any) (pgconn.CommandTag, error)) *Executor {
	e.exec[query] = fn
	return e
}

func (e *Executor) OnQueryRow(query string, fn func(args []any) pgx.Row) *Executor {
	e.queryRow[query] = fn
	return e
}

func (e *Executor) OnQuery(query string, fn func(args []any) (pgx.Rows, error)) *Executor {
	e.query[query] = fn
	return e
}

func (e *Executor) record(query string, args []any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Query: query, Args: args})
}

// Calls returns the statements issued so far.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallsTo returns the statements issued for query.
func (e *Executor) CallsTo(query string) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Query == query {
			out = append(out, c)
		}
	}
	return out
}

func (e *Executor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	e.record(query, args)
	fn, ok := e.exec[query]
	if !ok {
		return pgconn.CommandTag{}, fmt.Errorf("sqltest: unexpected exec")
	}
	return fn(args)
}

func (e *Executor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	e.record(query, args)
	fn, ok := e.queryRow[query]
	if !ok {
		return ErrRow(fmt.Errorf("sqltest: unexpected query row"))
	}
	return fn(args)
}

func (e *Executor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	e.record(query, args)
	fn, ok := e.query[query]
	if !ok {
		return nil, fmt.Errorf("sqltest: unexpected query")
	}
	return fn(args)
}

// Tag builds a command tag reporting n affected rows.
func Tag(n int) pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", n))
}
