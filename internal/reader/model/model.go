// Package model binds schema descriptors to physical entity tables at request
// time. A bound Model knows its table variant and column list and renders the
// row-selecting statements the store executes; rows come back keyed by alias
// so projection never needs compile-time schema knowledge.
package model

import (
	"strconv"
	"strings"

	"github.com/lib/pq"

	"domainreader/internal/schema"
)

// Variant selects which physical table a model reads.
type Variant int

const (
	Live Variant = iota
	Historical
)

func (v Variant) String() string {
	if v == Historical {
		return "historical"
	}
	return "live"
}

// Binder produces request-scoped models for one database layout.
type Binder struct {
	schema        string
	historySuffix string
	snapshotOrder string
}

func NewBinder(entitySchema, historySuffix string) *Binder {
	return &Binder{schema: entitySchema, historySuffix: historySuffix}
}

// WithSnapshotOrder names the history table column that breaks ties between
// snapshots of the same entity. Empty leaves their order to the database.
func (b *Binder) WithSnapshotOrder(column string) *Binder {
	out := *b
	out.snapshotOrder = column
	return &out
}

// Bind does not touch the database. A column missing from the target table
// surfaces as a BindingError when the model's query runs.
func (b *Binder) Bind(table string, fields []schema.Field, variant Variant) *Model {
	cols := make([]schema.Field, len(fields))
	copy(cols, fields)
	return &Model{
		schema:        b.schema,
		table:         table,
		historySuffix: b.historySuffix,
		snapshotOrder: b.snapshotOrder,
		variant:       variant,
		columns:       cols,
	}
}

// Model is a table variant plus the ordered columns selected from it.
type Model struct {
	schema        string
	table         string
	historySuffix string
	snapshotOrder string
	variant       Variant
	columns       []schema.Field
}

func (m *Model) Variant() Variant { return m.variant }

// WithVariant rebinds the same columns against another table variant.
func (m *Model) WithVariant(v Variant) *Model {
	out := *m
	out.variant = v
	return &out
}

// Table is the unquoted physical table name for the bound variant.
func (m *Model) Table() string {
	if m.variant == Historical {
		return m.table + m.historySuffix
	}
	return m.table
}

// QualifiedTable is the quoted, schema-qualified table for the bound variant.
func (m *Model) QualifiedTable() string {
	return m.qualify(m.Table())
}

// LiveTable is the quoted live table regardless of variant. Branch overrides
// only exist there.
func (m *Model) LiveTable() string {
	return m.qualify(m.table)
}

func (m *Model) qualify(table string) string {
	if m.schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(m.schema) + "." + pq.QuoteIdentifier(table)
}

// Aliases returns the output keys in select order.
func (m *Model) Aliases() []string {
	out := make([]string, len(m.columns))
	for i, c := range m.columns {
		out[i] = c.Alias
	}
	return out
}

func (m *Model) selectList() string {
	parts := make([]string, len(m.columns))
	for i, c := range m.columns {
		parts[i] = pq.QuoteIdentifier(c.ColumnName) + " AS " + pq.QuoteIdentifier(c.Alias)
	}
	return strings.Join(parts, ", ")
}

// Window restricts a query to one page of rows.
type Window struct {
	Limit  int
	Offset int
}

// Query is a statement and its positional arguments.
type Query struct {
	SQL  string
	Args []any
}

// SelectQuery renders the row query for where. Rows are ordered by id so
// windows are stable; historical rows sharing an id fall back to the snapshot
// column. Window bounds are appended as trailing arguments.
func (m *Model) SelectQuery(where string, args []any, window *Window) Query {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(m.selectList())
	b.WriteString(" FROM ")
	b.WriteString(m.QualifiedTable())
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	// Qualified so an alias named id cannot capture the sort key.
	b.WriteString(" ORDER BY " + m.QualifiedTable() + ".id")
	if m.variant == Historical && m.snapshotOrder != "" {
		b.WriteString(", " + m.QualifiedTable() + "." + pq.QuoteIdentifier(m.snapshotOrder))
	}

	out := make([]any, len(args), len(args)+2)
	copy(out, args)
	if window != nil {
		n := len(out)
		b.WriteString(" LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2))
		out = append(out, window.Limit, window.Offset)
	}
	return Query{SQL: b.String(), Args: out}
}

// CountQuery counts the rows SelectQuery would return for the same inputs.
func (m *Model) CountQuery(where string, args []any, window *Window) Query {
	inner := m.SelectQuery(where, args, window)
	return Query{
		SQL:  "SELECT count(*) FROM (" + inner.SQL + ") AS windowed",
		Args: inner.Args,
	}
}
