package writer

import (
	"context"
	"fmt"
	"log/slog"
)

// ChannelPublisher is the in-process queue used when no brokers are
// configured. A Worker drains it.
type ChannelPublisher struct {
	tasks chan Task
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	return &ChannelPublisher{tasks: make(chan Task, buffer)}
}

// Publish blocks while the buffer is full, until ctx is done.
func (p *ChannelPublisher) Publish(ctx context.Context, task Task) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue to %s: %w", task.Topic, ctx.Err())
	}
}

// Tasks is the receive side for a Worker.
func (p *ChannelPublisher) Tasks() <-chan Task {
	return p.tasks
}

// Sink processes tasks taken off the in-process queue.
type Sink interface {
	Handle(ctx context.Context, task Task) error
}

// Worker consumes tasks from a channel and hands them to a sink. Sink
// failures are logged and the worker moves on.
type Worker struct {
	sink   Sink
	inbox  <-chan Task
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Task, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Handle(ctx, task); err != nil {
				w.logger.ErrorContext(ctx, "task handling failed",
					"topic", task.Topic,
					"key", task.Key,
					"error", err,
				)
			}
		}
	}
}

// LogSink records tasks in the log. It stands in for the import pipeline in
// development setups without a broker.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Handle(ctx context.Context, task Task) error {
	s.logger.InfoContext(ctx, "task received",
		"topic", task.Topic,
		"key", task.Key,
		"bytes", len(task.Value),
	)
	return nil
}
