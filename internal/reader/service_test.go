package reader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"domainreader/internal/reader/filter"
	"domainreader/internal/reader/mocks"
	"domainreader/internal/reader/model"
	"domainreader/internal/schema"
	"domainreader/pkg/platform/sentinel"
)

// =============================================================================
// Query Resolution Engine Test Suite
// =============================================================================
// The engine is exercised against mocked registry and executor ports. SQL
// semantics (shadowing, soft delete, windows) are covered by the store
// integration suite; these tests pin orchestration: filter selection, marker
// ordering, history fallback, failure policies and projection.

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	registry *mocks.MockSchemaRegistry
	executor *mocks.MockExecutor
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.registry = mocks.NewMockSchemaRegistry(s.ctrl)
	s.executor = mocks.NewMockExecutor(s.ctrl)
	s.service = s.newService(DefaultConfig())
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) newService(cfg Config) *Service {
	svc, err := New(s.registry, s.executor,
		WithConfig(cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	return svc
}

func ordersDescriptor() *schema.Descriptor {
	return &schema.Descriptor{
		Model: schema.Model{Name: "Order", Table: "orders"},
		Fields: []schema.Field{
			{Alias: "orderId", FieldType: "integer", ColumnName: "id"},
			{Alias: "customer", FieldType: "string", ColumnName: "customer_name"},
		},
		Metadata: []schema.Field{
			{Alias: "branch", FieldType: "string", ColumnName: "branch"},
			{Alias: "createdAt", FieldType: "datetime", ColumnName: "created_at"},
		},
		Filters: []schema.Filter{
			{Name: "byId", Expression: "id = :id"},
			{Name: "byCustomer", Expression: "customer_name = :customer"},
		},
	}
}

var ordersKey = schema.Key{Map: "orders", Version: "1", Type: "Order"}

func orderRow(id int64, customer, branch string) model.Row {
	return model.RowOf(
		map[string]any{"orderId": id, "customer": customer, "branch": branch, "createdAt": nil},
	)
}

func ordersRequest(filterName string, params map[string]any) Request {
	return Request{Map: "orders", Version: "1", Type: "Order", Filter: filterName, Params: params}
}

// captured records what the executor was asked to run.
type captured struct {
	table string
	query model.Query
}

func (s *ServiceSuite) expectQuery(rows []model.Row, err error, into *captured) *gomock.Call {
	return s.executor.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m *model.Model, q model.Query) ([]model.Row, error) {
			if into != nil {
				into.table = m.Table()
				into.query = q
			}
			return rows, err
		})
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil registry returns error", func() {
		_, err := New(nil, s.executor)
		s.ErrorContains(err, "schema registry is required")
	})

	s.Run("nil executor returns error", func() {
		_, err := New(s.registry, nil)
		s.ErrorContains(err, "executor is required")
	})

	s.Run("defaults", func() {
		svc, err := New(s.registry, s.executor)
		s.Require().NoError(err)
		s.Equal(DefaultConfig(), svc.config)
		s.NotNil(svc.logger)
		s.NotNil(svc.tracer)
	})
}

// =============================================================================
// Resolve
// =============================================================================

func (s *ServiceSuite) TestResolve_NamedFilter() {
	s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
	var got captured
	s.expectQuery([]model.Row{orderRow(42, "acme", "master")}, nil, &got)

	records, err := s.service.Resolve(context.Background(), ordersRequest("byId", map[string]any{
		"id":     42,
		"branch": "promoA",
	}))
	s.Require().NoError(err)

	s.Equal("orders", got.table)
	s.Contains(got.query.SQL, `FROM "entities"."orders" WHERE `)
	s.Contains(got.query.SQL, "AND (id = $3)")
	s.NotContains(got.query.SQL, "LIMIT")
	s.Equal([]any{"promoA", "promoA", 42}, got.query.Args)

	s.Equal([]Record{{
		"orderId":  int64(42),
		"customer": "acme",
		"_metadata": map[string]any{
			"branch":    "master",
			"createdAt": nil,
		},
	}}, records)
}

func (s *ServiceSuite) TestResolve_NoFilterAppliesVisibilityOnly() {
	s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
	var got captured
	s.expectQuery(nil, nil, &got)

	records, err := s.service.Resolve(context.Background(), ordersRequest("", map[string]any{"id": 42}))
	s.Require().NoError(err)
	s.Empty(records)
	s.NotNil(records)
	s.NotContains(got.query.SQL, "$3")
	s.Equal([]any{"master", "master"}, got.query.Args)
}

// An id lookup on a feature branch with no matching rows renders the full
// visibility statement and answers with an empty, non-nil result.
func (s *ServiceSuite) TestResolve_IdLookupOnBranchWithoutRows() {
	s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
	var got captured
	s.expectQuery([]model.Row{}, nil, &got)

	records, err := s.service.Resolve(context.Background(), ordersRequest("byId", map[string]any{
		"id":     42,
		"branch": "promoA",
	}))
	s.Require().NoError(err)

	s.Equal([]any{"promoA", "promoA", 42}, got.query.Args)
	goldie.New(s.T()).Assert(s.T(), "orders_by_id_promoA", []byte(got.query.SQL))
	s.NotNil(records)
	s.Equal([]Record{}, records)
}

func (s *ServiceSuite) TestResolve_RecordsSpans() {
	newTraced := func() (*Service, *tracetest.SpanRecorder) {
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		svc, err := New(s.registry, s.executor,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			WithTracer(tp.Tracer("domainreader/reader")),
		)
		s.Require().NoError(err)
		return svc, recorder
	}
	spanNames := func(recorder *tracetest.SpanRecorder) []string {
		var names []string
		for _, span := range recorder.Ended() {
			names = append(names, span.Name())
		}
		return names
	}

	s.Run("resolve wraps the executed query", func() {
		svc, recorder := newTraced()
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		s.expectQuery([]model.Row{orderRow(42, "acme", "master")}, nil, nil)

		_, err := svc.Resolve(context.Background(), ordersRequest("byId", map[string]any{"id": 42}))
		s.Require().NoError(err)

		s.Equal([]string{"reader.execute", "reader.Resolve"}, spanNames(recorder))
		ended := recorder.Ended()
		s.Equal(ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID(), "execute is a child of resolve")
		s.Equal("orders", attributeValue(ended[0], "db.table"))
		s.Equal("orders", attributeValue(ended[1], "reader.map"))
	})

	s.Run("failed execution marks both spans", func() {
		svc, recorder := newTraced()
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		s.expectQuery(nil, errors.New("connection reset"), nil)

		_, err := svc.Resolve(context.Background(), ordersRequest("byId", map[string]any{"id": 42}))
		s.Require().Error(err)

		s.Equal([]string{"reader.execute", "reader.Resolve"}, spanNames(recorder))
		for _, span := range recorder.Ended() {
			s.Equal(codes.Error, span.Status().Code, span.Name())
		}
	})
}

func attributeValue(span sdktrace.ReadOnlySpan, key string) string {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func (s *ServiceSuite) TestResolve_EmptyParamsMeanNoFilter() {
	s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
	var got captured
	s.expectQuery(nil, nil, &got)

	_, err := s.service.Resolve(context.Background(), ordersRequest("byId", map[string]any{"id": 0, "branch": ""}))
	s.Require().NoError(err)
	s.Equal([]any{"master", "master"}, got.query.Args)
}

func (s *ServiceSuite) TestResolve_SchemaNotFound() {
	s.Run("registry reports not found", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Resolve(context.Background(), ordersRequest("byId", map[string]any{"id": 1}))
		s.ErrorIs(err, ErrSchemaNotFound)
	})

	s.Run("registry returns nothing", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(nil, nil)
		_, err := s.service.Resolve(context.Background(), ordersRequest("byId", map[string]any{"id": 1}))
		s.ErrorIs(err, ErrSchemaNotFound)
	})

	s.Run("registry outage is not a not-found", func() {
		outage := schema.NewRegistryError(schema.ErrorOutage, ordersKey, "registry unavailable", errors.New("502"))
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(nil, outage)
		_, err := s.service.Resolve(context.Background(), ordersRequest("byId", map[string]any{"id": 1}))
		s.Error(err)
		s.NotErrorIs(err, ErrSchemaNotFound)
		s.True(schema.IsRetryable(err))
	})
}

func (s *ServiceSuite) TestResolve_FilterNotFound() {
	s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)

	_, err := s.service.Resolve(context.Background(), ordersRequest("byRegion", map[string]any{"region": "eu"}))
	s.ErrorIs(err, ErrFilterNotFound)
}

func (s *ServiceSuite) TestResolve_UnboundParameter() {
	s.Run("reject policy fails compilation", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)

		_, err := s.service.Resolve(context.Background(), ordersRequest("byCustomer", map[string]any{"id": 1}))
		s.ErrorIs(err, filter.ErrUnboundParameter)
		s.True(IsCompilationError(err))
	})

	s.Run("falsy values count as missing", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)

		_, err := s.service.Resolve(context.Background(), ordersRequest("byCustomer", map[string]any{"customer": "", "id": 1}))
		s.ErrorIs(err, filter.ErrUnboundParameter)
	})

	s.Run("drop policy falls back to visibility", func() {
		cfg := DefaultConfig()
		cfg.UnboundPolicy = filter.DropUnbound
		svc := s.newService(cfg)

		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		var got captured
		s.expectQuery(nil, nil, &got)

		_, err := svc.Resolve(context.Background(), ordersRequest("byCustomer", map[string]any{"id": 1}))
		s.Require().NoError(err)
		s.Equal([]any{"master", "master"}, got.query.Args)
	})
}

func (s *ServiceSuite) TestResolve_Pagination() {
	s.Run("page two of ten", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		var got captured
		s.expectQuery(nil, nil, &got)

		_, err := s.service.Resolve(context.Background(), ordersRequest("", map[string]any{"page": 2, "page_size": "10"}))
		s.Require().NoError(err)
		s.Contains(got.query.SQL, "LIMIT $3 OFFSET $4")
		s.Equal([]any{"master", "master", 10, 10}, got.query.Args)
	})

	s.Run("page size is clamped", func() {
		cfg := DefaultConfig()
		cfg.MaxPageSize = 50
		svc := s.newService(cfg)

		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		var got captured
		s.expectQuery(nil, nil, &got)

		_, err := svc.Resolve(context.Background(), ordersRequest("", map[string]any{"page": 3, "page_size": 500}))
		s.Require().NoError(err)
		s.Equal([]any{"master", "master", 50, 100}, got.query.Args)
	})

	s.Run("page without size is unpaginated", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		var got captured
		s.expectQuery(nil, nil, &got)

		_, err := s.service.Resolve(context.Background(), ordersRequest("", map[string]any{"page": 2}))
		s.Require().NoError(err)
		s.NotContains(got.query.SQL, "LIMIT")
	})
}

func (s *ServiceSuite) TestResolve_ExecutionFailure() {
	dbErr := errors.New("connection reset by peer")

	s.Run("error policy surfaces execution error", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		s.expectQuery(nil, dbErr, nil)

		_, err := s.service.Resolve(context.Background(), ordersRequest("byId", map[string]any{"id": 1}))
		var execErr *ExecutionError
		s.Require().ErrorAs(err, &execErr)
		s.Equal("orders", execErr.Table)
		s.ErrorIs(err, dbErr)
	})

	s.Run("empty policy degrades to empty result", func() {
		cfg := DefaultConfig()
		cfg.FailurePolicy = FailEmpty
		svc := s.newService(cfg)

		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		s.expectQuery(nil, dbErr, nil)

		records, err := svc.Resolve(context.Background(), ordersRequest("byId", map[string]any{"id": 1}))
		s.NoError(err)
		s.Empty(records)
	})

	s.Run("binding errors propagate under every policy", func() {
		cfg := DefaultConfig()
		cfg.FailurePolicy = FailEmpty
		svc := s.newService(cfg)

		bindErr := &model.BindingError{Table: "orders", Column: "customer_name", Err: dbErr}
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		s.expectQuery(nil, bindErr, nil)

		_, err := svc.Resolve(context.Background(), ordersRequest("byId", map[string]any{"id": 1}))
		var got *model.BindingError
		s.Require().ErrorAs(err, &got)
		s.Equal("customer_name", got.Column)
	})
}

func (s *ServiceSuite) TestResolve_QueryTimeout() {
	cfg := DefaultConfig()
	cfg.QueryTimeout = 50 * time.Millisecond
	svc := s.newService(cfg)

	s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
	s.executor.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *model.Model, _ model.Query) ([]model.Row, error) {
			deadline, ok := ctx.Deadline()
			s.True(ok)
			s.WithinDuration(time.Now().Add(cfg.QueryTimeout), deadline, cfg.QueryTimeout)
			return nil, nil
		})

	_, err := svc.Resolve(context.Background(), ordersRequest("", nil))
	s.NoError(err)
}

func (s *ServiceSuite) TestResolve_ProjectionRequiresEveryAlias() {
	s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
	partial := model.RowOf(map[string]any{"orderId": int64(1)})
	s.expectQuery([]model.Row{partial}, nil, nil)

	_, err := s.service.Resolve(context.Background(), ordersRequest("", nil))
	s.ErrorContains(err, `missing field "customer"`)
}

// =============================================================================
// History
// =============================================================================

func (s *ServiceSuite) TestResolve_History() {
	historyRequest := func() Request {
		req := ordersRequest("byCustomer", map[string]any{"id": 7, "branch": "promoA"})
		req.History = true
		return req
	}

	s.Run("snapshots are served from the history table by id", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		var got captured
		s.expectQuery([]model.Row{orderRow(7, "old name", "promoA")}, nil, &got)

		records, err := s.service.Resolve(context.Background(), historyRequest())
		s.Require().NoError(err)
		s.Len(records, 1)
		s.Equal("old name", records[0]["customer"])

		s.Equal("orders_history", got.table)
		s.Contains(got.query.SQL, `FROM "entities"."orders_history"`)
		s.Contains(got.query.SQL, `SELECT from_id FROM "entities"."orders" WHERE`)
		s.Contains(got.query.SQL, "AND (id = $3)")
		s.Contains(got.query.SQL, `ORDER BY "entities"."orders_history".id, "entities"."orders_history"."snapshot_id"`)
		s.Equal([]any{"promoA", "promoA", 7}, got.query.Args)
	})

	s.Run("empty history falls back to the live row", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		var first, second captured
		gomock.InOrder(
			s.expectQuery(nil, nil, &first),
			s.expectQuery([]model.Row{orderRow(7, "acme", "master")}, nil, &second),
		)

		records, err := s.service.Resolve(context.Background(), historyRequest())
		s.Require().NoError(err)
		s.Len(records, 1)
		s.Equal(int64(7), records[0]["orderId"])

		s.Equal("orders_history", first.table)
		s.Equal("orders", second.table)
		s.Equal(first.query.Args, second.query.Args, "fallback reuses the compiled predicate")
	})

	s.Run("history lookup failure surfaces under error policy", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		s.expectQuery(nil, errors.New("boom"), nil)

		_, err := s.service.Resolve(context.Background(), historyRequest())
		var execErr *ExecutionError
		s.ErrorAs(err, &execErr)
	})

	s.Run("history lookup failure still falls back under empty policy", func() {
		cfg := DefaultConfig()
		cfg.FailurePolicy = FailEmpty
		svc := s.newService(cfg)

		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		gomock.InOrder(
			s.expectQuery(nil, errors.New("boom"), nil),
			s.expectQuery([]model.Row{orderRow(7, "acme", "master")}, nil, nil),
		)

		records, err := svc.Resolve(context.Background(), historyRequest())
		s.NoError(err)
		s.Len(records, 1)
	})
}

// =============================================================================
// Count
// =============================================================================

func (s *ServiceSuite) TestCount() {
	s.Run("counts the filtered window", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		s.executor.EXPECT().Count(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, q model.Query) (int64, error) {
				s.Contains(q.SQL, "SELECT count(*) FROM (SELECT ")
				s.Contains(q.SQL, "AND (customer_name = $3)")
				s.Contains(q.SQL, "LIMIT $4 OFFSET $5")
				s.Equal([]any{"master", "master", "acme", 10, 0}, q.Args)
				return 3, nil
			})

		n, err := s.service.Count(context.Background(), ordersRequest("byCustomer", map[string]any{
			"customer": "acme", "page": 1, "page_size": 10,
		}))
		s.Require().NoError(err)
		s.Equal(int64(3), n)
	})

	s.Run("schema not found", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Count(context.Background(), ordersRequest("", nil))
		s.ErrorIs(err, ErrSchemaNotFound)
	})

	s.Run("execution failure", func() {
		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		s.executor.EXPECT().Count(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("boom"))

		_, err := s.service.Count(context.Background(), ordersRequest("", nil))
		var execErr *ExecutionError
		s.ErrorAs(err, &execErr)
		s.Equal("count", execErr.Op)
	})

	s.Run("execution failure under empty policy counts zero", func() {
		cfg := DefaultConfig()
		cfg.FailurePolicy = FailEmpty
		svc := s.newService(cfg)

		s.registry.EXPECT().GetSchema(gomock.Any(), ordersKey).Return(ordersDescriptor(), nil)
		s.executor.EXPECT().Count(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("boom"))

		n, err := svc.Count(context.Background(), ordersRequest("", nil))
		s.NoError(err)
		s.Zero(n)
	})
}
