// Package reader is the query resolution engine. Given a schema descriptor, a
// named filter and request parameters it builds the branch visibility
// predicate, executes it against the live or historical table variant, falls
// back from history to live when history is empty, paginates and projects
// rows into the descriptor's output shape.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"domainreader/internal/reader/filter"
	"domainreader/internal/reader/metrics"
	"domainreader/internal/reader/model"
	"domainreader/internal/reader/visibility"
	"domainreader/internal/schema"
	"domainreader/pkg/platform/sentinel"
)

// historyFilter is applied to every history lookup: snapshots are fetched by
// record identity only.
const historyFilter = "id = :id"

// Record is one projected row: field aliases plus the _metadata map.
type Record map[string]any

// Request identifies what to resolve.
type Request struct {
	Map     string
	Version string
	Type    string
	// Filter names one of the descriptor's filters. Empty applies visibility
	// only. Ignored for history lookups.
	Filter  string
	Params  map[string]any
	History bool
}

func (r Request) key() schema.Key {
	return schema.Key{Map: r.Map, Version: r.Version, Type: r.Type}
}

// Config tunes the engine.
type Config struct {
	QueryTimeout  time.Duration
	MaxPageSize   int
	EntitySchema  string
	HistorySuffix string
	HistoryOrder  string
	FailurePolicy FailurePolicy
	UnboundPolicy filter.UnboundPolicy
}

func DefaultConfig() Config {
	return Config{
		QueryTimeout:  10 * time.Second,
		MaxPageSize:   1000,
		EntitySchema:  "entities",
		HistorySuffix: "_history",
		HistoryOrder:  "snapshot_id",
		FailurePolicy: FailWithError,
		UnboundPolicy: filter.RejectUnbound,
	}
}

type Service struct {
	registry SchemaRegistry
	executor Executor
	binder   *model.Binder
	compiler *filter.Compiler
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func New(registry SchemaRegistry, executor Executor, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("schema registry is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	svc := &Service{
		registry: registry,
		executor: executor,
		config:   DefaultConfig(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("domainreader/reader"),
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.binder = model.NewBinder(svc.config.EntitySchema, svc.config.HistorySuffix).
		WithSnapshotOrder(svc.config.HistoryOrder)
	svc.compiler = filter.NewCompiler(svc.config.UnboundPolicy)
	return svc, nil
}

// plan is everything built for one request before execution.
type plan struct {
	descriptor *schema.Descriptor
	model      *model.Model
	predicate  visibility.Predicate
	window     *model.Window
	branch     string
}

// Resolve returns the projected records visible for the request.
func (s *Service) Resolve(ctx context.Context, req Request) ([]Record, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "reader.Resolve", req)
	defer span.End()

	records, err := s.resolve(ctx, req)
	s.finish(ctx, span, "resolve", req, start, err)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "resolution completed",
		"map", req.Map, "version", req.Version, "type", req.Type,
		"filter", req.Filter, "history", req.History,
		"rows", len(records), "duration_ms", time.Since(start).Milliseconds(),
	)
	return records, nil
}

func (s *Service) resolve(ctx context.Context, req Request) ([]Record, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.fetch(ctx, p.model, p.predicate, p.window)
	if err != nil {
		if !s.degrade(ctx, err) {
			return nil, err
		}
		rows = nil
	}

	if req.History && len(rows) == 0 {
		// Records without snapshots yet are answered by their live row, using
		// the same predicate and id.
		s.metrics.IncHistoryFallback()
		s.logger.InfoContext(ctx, "history empty, falling back to live table",
			"table", p.model.Table(), "branch", p.branch)
		rows, err = s.fetch(ctx, p.model.WithVariant(model.Live), p.predicate, p.window)
		if err != nil {
			if !s.degrade(ctx, err) {
				return nil, err
			}
			rows = nil
		}
	}

	return project(p.descriptor, rows)
}

// Count returns how many rows Resolve would return for the request, within
// the requested page window when one is given. History lookups are counted
// against the historical table without fallback.
func (s *Service) Count(ctx context.Context, req Request) (int64, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "reader.Count", req)
	defer span.End()

	n, err := s.count(ctx, req)
	s.finish(ctx, span, "count", req, start, err)
	return n, err
}

func (s *Service) count(ctx context.Context, req Request) (int64, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q := p.model.CountQuery(p.predicate.SQL, p.predicate.Args, p.window)
	n, err := s.executor.Count(ctx, q)
	if err != nil {
		err = s.classify("count", p.model, err)
		if s.degrade(ctx, err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (s *Service) prepare(ctx context.Context, req Request) (*plan, error) {
	desc, err := s.registry.GetSchema(ctx, req.key())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, req.key())
		}
		return nil, fmt.Errorf("fetch schema %s: %w", req.key(), err)
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, req.key())
	}

	expression, err := filterExpression(desc, req)
	if err != nil {
		return nil, err
	}

	params := CleanParams(req.Params)
	frag, err := s.compiler.Compile(expression, params)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", req.Filter, err)
	}

	variant := model.Live
	if req.History {
		variant = model.Historical
	}
	m := s.binder.Bind(desc.Model.Table, desc.Columns(), variant)
	branch := branchOf(params)
	pred := visibility.Build(m.LiveTable(), branch, frag)

	s.logger.DebugContext(ctx, "predicate built",
		"table", m.Table(), "variant", variant.String(), "where", pred.SQL,
		"filter_params", frag.Names())

	return &plan{
		descriptor: desc,
		model:      m,
		predicate:  pred,
		window:     windowOf(params, s.config.MaxPageSize),
		branch:     branch,
	}, nil
}

func filterExpression(desc *schema.Descriptor, req Request) (string, error) {
	if req.History {
		return historyFilter, nil
	}
	if req.Filter == "" {
		return "", nil
	}
	f, ok := desc.Filter(req.Filter)
	if !ok {
		return "", fmt.Errorf("%w: %q on %s", ErrFilterNotFound, req.Filter, req.key())
	}
	return f.Expression, nil
}

func (s *Service) fetch(ctx context.Context, m *model.Model, pred visibility.Predicate, window *model.Window) ([]model.Row, error) {
	ctx, span := s.tracer.Start(ctx, "reader.execute", trace.WithAttributes(
		attribute.String("db.table", m.Table()),
		attribute.String("reader.variant", m.Variant().String()),
	))
	defer span.End()

	rows, err := s.executor.Query(ctx, m, m.SelectQuery(pred.SQL, pred.Args, window))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, s.classify("select", m, err)
	}
	return rows, nil
}

// classify keeps binding errors as they are and wraps anything else as an
// execution failure.
func (s *Service) classify(op string, m *model.Model, err error) error {
	var bindErr *model.BindingError
	if errors.As(err, &bindErr) {
		return err
	}
	return &ExecutionError{Op: op, Table: m.Table(), Err: err}
}

// degrade reports whether err is an execution failure the configured policy
// turns into an empty result. Every execution failure is logged and counted.
func (s *Service) degrade(ctx context.Context, err error) bool {
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		return false
	}
	s.metrics.IncExecutionFailure()
	s.logger.ErrorContext(ctx, "query execution failed",
		"op", execErr.Op, "table", execErr.Table, "error", execErr.Err)
	return s.config.FailurePolicy == FailEmpty
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.QueryTimeout)
}

func (s *Service) startSpan(ctx context.Context, name string, req Request) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("reader.map", req.Map),
		attribute.String("reader.version", req.Version),
		attribute.String("reader.type", req.Type),
		attribute.String("reader.filter", req.Filter),
		attribute.Bool("reader.history", req.History),
	))
}

func (s *Service) finish(ctx context.Context, span trace.Span, op string, req Request, start time.Time, err error) {
	outcome := outcomeOf(err)
	s.metrics.ObserveResolution(op, outcome, time.Since(start))
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	s.logger.WarnContext(ctx, "resolution failed",
		"op", op, "map", req.Map, "version", req.Version, "type", req.Type,
		"filter", req.Filter, "history", req.History, "error", err)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrSchemaNotFound), errors.Is(err, ErrFilterNotFound):
		return metrics.OutcomeNotFound
	case IsCompilationError(err):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
