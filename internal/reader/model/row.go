package model

import "fmt"

// Row is one selected record keyed by field alias.
type Row struct {
	values map[string]any
}

// NewRow pairs scanned values with the model's aliases.
func (m *Model) NewRow(values []any) (Row, error) {
	if len(values) != len(m.columns) {
		return Row{}, fmt.Errorf("row has %d values for %d columns of %s", len(values), len(m.columns), m.Table())
	}
	row := Row{values: make(map[string]any, len(values))}
	for i, alias := range m.Aliases() {
		row.values[alias] = normalize(values[i])
	}
	return row, nil
}

// RowOf builds a row directly, mainly for tests and fakes.
func RowOf(values map[string]any) Row {
	return Row{values: values}
}

func (r Row) Get(alias string) (any, bool) {
	v, ok := r.values[alias]
	return v, ok
}

// database/sql hands text-like columns back as []byte.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
