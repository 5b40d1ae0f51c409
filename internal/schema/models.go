package schema

import (
	"context"
	"fmt"
)

// Key identifies a descriptor in the registry.
type Key struct {
	Map     string
	Version string
	Type    string
}

func (k Key) String() string {
	return k.Map + "/" + k.Version + "/" + k.Type
}

// Model names the logical entity and its backing table.
type Model struct {
	Name  string `json:"name" yaml:"name"`
	Table string `json:"table" yaml:"table"`
}

// Field maps an externally visible alias to a physical column.
type Field struct {
	Alias      string `json:"alias" yaml:"alias"`
	FieldType  string `json:"field_type" yaml:"field_type"`
	ColumnName string `json:"column_name" yaml:"column_name"`
}

// Filter is a named predicate template with :name placeholders.
type Filter struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

// Descriptor is the registry's description of one entity type. Descriptors
// may be shared between concurrent requests and must be treated as read-only.
type Descriptor struct {
	Model    Model    `json:"model" yaml:"model"`
	Fields   []Field  `json:"fields" yaml:"fields"`
	Metadata []Field  `json:"metadata" yaml:"metadata"`
	Filters  []Filter `json:"filters" yaml:"filters"`
}

// Registry resolves descriptors. Implementations return an error wrapping
// sentinel.ErrNotFound when no descriptor exists for the key.
type Registry interface {
	GetSchema(ctx context.Context, key Key) (*Descriptor, error)
}

// Filter looks up a named filter.
func (d *Descriptor) Filter(name string) (Filter, bool) {
	for _, f := range d.Filters {
		if f.Name == name {
			return f, true
		}
	}
	return Filter{}, false
}

// Columns returns fields followed by metadata, the order rows are selected in.
func (d *Descriptor) Columns() []Field {
	cols := make([]Field, 0, len(d.Fields)+len(d.Metadata))
	cols = append(cols, d.Fields...)
	return append(cols, d.Metadata...)
}

// Validate checks the structural guarantees the reader relies on: a table,
// unique aliases across fields and metadata, and unique filter names.
func (d *Descriptor) Validate() error {
	if d.Model.Table == "" {
		return fmt.Errorf("descriptor %q has no table", d.Model.Name)
	}

	seen := make(map[string]struct{}, len(d.Fields)+len(d.Metadata))
	for _, f := range d.Columns() {
		if f.Alias == "" || f.ColumnName == "" {
			return fmt.Errorf("descriptor %q has a field without alias or column", d.Model.Name)
		}
		if f.Alias == MetadataKey {
			return fmt.Errorf("descriptor %q uses reserved alias %s", d.Model.Name, MetadataKey)
		}
		if _, dup := seen[f.Alias]; dup {
			return fmt.Errorf("descriptor %q declares alias %q twice", d.Model.Name, f.Alias)
		}
		seen[f.Alias] = struct{}{}
	}

	names := make(map[string]struct{}, len(d.Filters))
	for _, f := range d.Filters {
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("descriptor %q declares filter %q twice", d.Model.Name, f.Name)
		}
		names[f.Name] = struct{}{}
	}
	return nil
}

// MetadataKey is the output key under which metadata fields are nested.
const MetadataKey = "_metadata"
