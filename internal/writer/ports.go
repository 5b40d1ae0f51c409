package writer

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Publisher,Saver

import "context"

// Publisher hands tasks to the queue. Publish returns once the queue has
// accepted the task; no ordering is promised across tasks.
type Publisher interface {
	Publish(ctx context.Context, task Task) error
}

// Saver persists one instance. Its business logic lives outside this service.
type Saver interface {
	SaveData(ctx context.Context, instanceID string) error
}
