// Package writer accepts batch writes and instance saves and hands them to
// the asynchronous task queue. Nothing here waits for the import to finish.
package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	dErrors "domainreader/pkg/domain-errors"
	"domainreader/pkg/requestcontext"
)

const (
	DefaultImportTopic = "domain.import"
	DefaultSaveTopic   = "domain.save"
)

type Service struct {
	publisher   Publisher
	importTopic string
	logger      *slog.Logger
	metrics     *Metrics
	newID       func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithImportTopic(topic string) Option {
	return func(s *Service) {
		if topic != "" {
			s.importTopic = topic
		}
	}
}

// WithIDGenerator replaces uuid batch ids, mainly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(publisher Publisher, opts ...Option) (*Service, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	svc := &Service{
		publisher:   publisher,
		importTopic: DefaultImportTopic,
		logger:      slog.Default(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// EnqueueBatch wraps payload, which must be a JSON document, in an import
// envelope keyed by a fresh batch id.
func (s *Service) EnqueueBatch(ctx context.Context, payload []byte) (Receipt, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Receipt{}, dErrors.New(dErrors.CodeBadRequest, "batch payload is required")
	}
	if !json.Valid(payload) {
		return Receipt{}, dErrors.New(dErrors.CodeBadRequest, "batch payload must be valid JSON")
	}

	env := Envelope{
		BatchID:    s.newID(),
		ReceivedAt: requestcontext.Now(ctx),
		Subject:    requestcontext.Subject(ctx),
		ClientIP:   requestcontext.ClientIP(ctx),
		UserAgent:  requestcontext.UserAgent(ctx),
		Payload:    json.RawMessage(payload),
	}
	value, err := json.Marshal(env)
	if err != nil {
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode batch envelope")
	}

	if err := s.publish(ctx, KindBatch, Task{Topic: s.importTopic, Key: env.BatchID, Value: value}); err != nil {
		return Receipt{}, err
	}
	s.logger.InfoContext(ctx, "batch enqueued",
		"batch_id", env.BatchID,
		"topic", s.importTopic,
		"bytes", len(payload),
	)
	return Receipt{BatchID: env.BatchID}, nil
}

func (s *Service) publish(ctx context.Context, kind string, task Task) error {
	if err := s.publisher.Publish(ctx, task); err != nil {
		s.metrics.incFailure()
		s.logger.ErrorContext(ctx, "enqueue failed",
			"kind", kind,
			"topic", task.Topic,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "task queue unavailable")
	}
	s.metrics.incEnqueued(kind)
	return nil
}

// QueueSaver is the default Saver: it enqueues a save command and returns.
type QueueSaver struct {
	service *Service
	topic   string
}

func NewQueueSaver(service *Service, topic string) *QueueSaver {
	if topic == "" {
		topic = DefaultSaveTopic
	}
	return &QueueSaver{service: service, topic: topic}
}

func (q *QueueSaver) SaveData(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "instance id is required")
	}
	cmd := SaveCommand{
		InstanceID:  instanceID,
		RequestedAt: requestcontext.Now(ctx),
		Subject:     requestcontext.Subject(ctx),
	}
	value, err := json.Marshal(cmd)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode save command")
	}
	return q.service.publish(ctx, KindSave, Task{Topic: q.topic, Key: instanceID, Value: value})
}

var _ Saver = (*QueueSaver)(nil)
