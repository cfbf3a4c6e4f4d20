package tasks

import (
	"encoding/json"
	"sync"
	"time"

	errs "github.com/vinayprograms/taskstate/errors"
)

// ErrQueueClosed is returned by Enqueue after the queue has been closed.
var ErrQueueClosed = errs.New(errs.ErrCodeClosed, "message queue closed")

// MessageKind classifies a message passed to a running task.
type MessageKind string

const (
	// KindCancel asks the task's executor to stop.
	KindCancel MessageKind = "cancel"

	// KindProgress carries a progress note toward the request handler.
	KindProgress MessageKind = "progress"

	// KindInput carries additional input for the task.
	KindInput MessageKind = "input"
)

// Message is one signal exchanged between a request handler and the logic
// executing a task.
type Message struct {
	Kind       MessageKind     `json:"kind"`
	Body       json.RawMessage `json:"body,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// MessageQueue holds one FIFO per task ID. Operations never block.
// Queues live only in this process and are discarded on Close.
type MessageQueue struct {
	mu     sync.Mutex
	queues map[string][]Message
	closed bool
	now    func() time.Time
}

// NewMessageQueue creates an empty queue.
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{
		queues: make(map[string][]Message),
		now:    time.Now,
	}
}

// Enqueue appends msg to the task's queue. A zero EnqueuedAt is stamped.
func (q *MessageQueue) Enqueue(taskID string, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = q.now()
	}
	q.queues[taskID] = append(q.queues[taskID], msg)
	return nil
}

// Dequeue removes and returns the oldest message for the task. The bool is
// false when the queue is empty.
func (q *MessageQueue) Dequeue(taskID string) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs := q.queues[taskID]
	if len(msgs) == 0 {
		return Message{}, false
	}
	msg := msgs[0]
	msgs[0] = Message{}
	if len(msgs) == 1 {
		delete(q.queues, taskID)
	} else {
		q.queues[taskID] = msgs[1:]
	}
	return msg, true
}

// Len returns the number of pending messages for the task.
func (q *MessageQueue) Len(taskID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[taskID])
}

// Drop discards every pending message for the task.
func (q *MessageQueue) Drop(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queues, taskID)
}

// Close discards all queues. Later Enqueue calls fail; Dequeue reports empty.
func (q *MessageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.queues = make(map[string][]Message)
}
