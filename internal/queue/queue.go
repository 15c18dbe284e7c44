/**
 * Path Queue for the screenscan worker
 *
 * FIFO hand-off between the capture producer and the recognition worker.
 * Ownership of a path moves to the queue on Send and to the receiver on Receive.
 */

package queue

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Overflow decides what Send does when the queue is full
type Overflow int

const (
	// Block waits until the receiver frees a slot
	Block Overflow = iota
	// DropOldest evicts the oldest pending path to make room
	DropOldest
)

// Config holds queue configuration
type Config struct {
	// Capacity <= 0 means unbounded
	Capacity int
	Overflow Overflow
}

// Queue is a bounded FIFO of image paths safe for concurrent senders
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []string
	evicted  []string
	closed   bool
	config   Config
}

// New creates a new path queue
func New(cfg Config) *Queue {
	q := &Queue{config: cfg}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) full() bool {
	return q.config.Capacity > 0 && len(q.items) >= q.config.Capacity
}

// Send appends a path. With Block it waits while the queue is full; a
// close during the wait makes it return ErrClosed. With DropOldest the
// evicted path is parked for TakeEvicted and Send never waits.
func (q *Queue) Send(path string) error {
	q.mu.Lock()
	if q.config.Overflow == Block {
		for q.full() && !q.closed {
			q.notFull.Wait()
		}
	}
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.full() {
		q.evicted = append(q.evicted, q.items[0])
		q.items[0] = ""
		q.items = q.items[1:]
	}
	q.items = append(q.items, path)
	q.notEmpty.Signal()
	q.mu.Unlock()
	return nil
}

// Receive blocks until a path is available. It returns false once the
// queue is closed and drained.
func (q *Queue) Receive() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return "", false
	}

	path := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	q.notFull.Signal()
	return path, true
}

// Close stops accepting paths. Pending paths stay receivable. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

// TakeEvicted removes and returns the paths evicted by DropOldest since the
// last call. The caller becomes the owner of those paths.
func (q *Queue) TakeEvicted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := q.evicted
	q.evicted = nil
	return evicted
}

// Len returns the number of pending paths
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
