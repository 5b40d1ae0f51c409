package writer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu    sync.Mutex
	tasks []Task
	fail  bool
}

func (r *recordingSink) Handle(_ context.Context, task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	if r.fail {
		return errors.New("sink failed")
	}
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func TestChannelPublisher_WorkerDrainsTasks(t *testing.T) {
	pub := NewChannelPublisher(4)
	sink := &recordingSink{fail: true}
	worker := NewWorker(sink, pub.Tasks(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.NoError(t, pub.Publish(ctx, Task{Topic: "domain.import", Key: "a"}))
	require.NoError(t, pub.Publish(ctx, Task{Topic: "domain.import", Key: "b"}))

	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond,
		"sink failures do not stop the worker")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestChannelPublisher_FullBufferRespectsContext(t *testing.T) {
	pub := NewChannelPublisher(1)
	require.NoError(t, pub.Publish(context.Background(), Task{Topic: "t"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pub.Publish(ctx, Task{Topic: "t"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorker_StopsWhenInboxCloses(t *testing.T) {
	inbox := make(chan Task)
	close(inbox)
	err := NewWorker(&recordingSink{}, inbox, nil).Run(context.Background())
	assert.NoError(t, err)
}
