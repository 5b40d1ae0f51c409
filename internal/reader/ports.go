package reader

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks SchemaRegistry,Executor

import (
	"context"

	"domainreader/internal/reader/model"
	"domainreader/internal/schema"
)

// SchemaRegistry supplies descriptors. A missing descriptor is reported as an
// error wrapping sentinel.ErrNotFound or as a nil descriptor.
type SchemaRegistry interface {
	GetSchema(ctx context.Context, key schema.Key) (*schema.Descriptor, error)
}

// Executor runs rendered queries. Query returns rows shaped by m; an unknown
// column or table is reported as *model.BindingError.
type Executor interface {
	Query(ctx context.Context, m *model.Model, q model.Query) ([]model.Row, error)
	Count(ctx context.Context, q model.Query) (int64, error)
}
