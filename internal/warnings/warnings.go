// Package warnings holds messages raised before any UI channel exists
// (config load, migration, pattern compilation) until a session can show them.
package warnings

import "sync"

// Sink receives recoverable warnings.
type Sink interface {
	Warn(msg string)
}

// Queue is a Sink that buffers warnings until drained at session start.
type Queue struct {
	mu      sync.Mutex
	pending []string
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Warn(msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, msg)
}

// Drain returns all queued warnings in arrival order and empties the queue.
func (q *Queue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len reports how many warnings are pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Discard drops every warning.
type Discard struct{}

func (Discard) Warn(string) {}

// Func adapts a plain function to a Sink.
type Func func(msg string)

func (f Func) Warn(msg string) { f(msg) }
