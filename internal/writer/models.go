package writer

import (
	"encoding/json"
	"time"
)

// Envelope wraps one accepted batch on the import queue.
type Envelope struct {
	BatchID    string          `json:"batch_id"`
	ReceivedAt time.Time       `json:"received_at"`
	Subject    string          `json:"subject,omitempty"`
	ClientIP   string          `json:"client_ip,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// SaveCommand asks the import side to persist one instance.
type SaveCommand struct {
	InstanceID  string    `json:"instance_id"`
	RequestedAt time.Time `json:"requested_at"`
	Subject     string    `json:"subject,omitempty"`
}

// Receipt acknowledges acceptance. Acceptance does not imply completion.
type Receipt struct {
	BatchID string `json:"batch_id"`
}

// Task is one message handed to a Publisher.
type Task struct {
	Topic string
	Key   string
	Value []byte
}
