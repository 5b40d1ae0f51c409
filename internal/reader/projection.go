package reader

import (
	"fmt"

	"domainreader/internal/reader/model"
	"domainreader/internal/schema"
)

// project shapes rows into records whose keys are exactly the descriptor's
// field aliases plus _metadata. A row lacking an alias is an error.
func project(desc *schema.Descriptor, rows []model.Row) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec := make(Record, len(desc.Fields)+1)
		for _, f := range desc.Fields {
			v, ok := row.Get(f.Alias)
			if !ok {
				return nil, fmt.Errorf("project row %d of %s: missing field %q", i, desc.Model.Name, f.Alias)
			}
			rec[f.Alias] = v
		}

		meta := make(map[string]any, len(desc.Metadata))
		for _, f := range desc.Metadata {
			v, ok := row.Get(f.Alias)
			if !ok {
				return nil, fmt.Errorf("project row %d of %s: missing metadata %q", i, desc.Model.Name, f.Alias)
			}
			meta[f.Alias] = v
		}
		rec[schema.MetadataKey] = meta
		out = append(out, rec)
	}
	return out, nil
}
