// Package delivery provides a sequential task runner keyed by user. Outbound
// chat operations for one user must happen in enqueue order even though each
// one is an asynchronous network call; tasks for different users run freely in
// parallel.
package delivery

import (
	"sync"
	"time"

	"quizbot-service/internal/domain"
)

// Task is one unit of outbound work (send, edit, or delete of a chat message).
type Task func() error

// Queue serializes tasks per user. A task that sits unexecuted longer than
// maxAge is evicted and its waiter receives ErrDeliveryTimeout; it will never
// run afterwards, so stale content cannot surprise-deliver later.
type Queue struct {
	maxAge time.Duration

	mu    sync.Mutex
	users map[int64]*userQueue
}

type userQueue struct {
	pending []*job
	running bool
}

type job struct {
	run     Task
	done    chan error
	timer   *time.Timer
	mu      sync.Mutex
	settled bool
}

// DefaultMaxAge matches the transport's reconnect grace period.
const DefaultMaxAge = 5 * time.Minute

func NewQueue(maxAge time.Duration) *Queue {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Queue{
		maxAge: maxAge,
		users:  make(map[int64]*userQueue),
	}
}

// Enqueue schedules task after all previously queued tasks for userID. The
// returned channel yields exactly one value: the task's error, nil on success,
// ErrDeliveryTimeout if it aged out, or ErrSessionReset if the queue was
// cleared first. Callers that need back-pressure receive on the channel.
func (q *Queue) Enqueue(userID int64, task Task) <-chan error {
	j := &job{
		run:  task,
		done: make(chan error, 1),
	}
	j.timer = time.AfterFunc(q.maxAge, func() {
		j.settle(domain.ErrDeliveryTimeout)
	})

	q.mu.Lock()
	uq, ok := q.users[userID]
	if !ok {
		uq = &userQueue{}
		q.users[userID] = uq
	}
	uq.pending = append(uq.pending, j)
	start := !uq.running
	if start {
		uq.running = true
	}
	q.mu.Unlock()

	if start {
		go q.drain(userID, uq)
	}
	return j.done
}

// Clear drops every pending task for userID immediately, settling their
// waiters with ErrSessionReset. A task already executing is not interrupted.
func (q *Queue) Clear(userID int64) {
	q.mu.Lock()
	uq, ok := q.users[userID]
	var dropped []*job
	if ok {
		dropped = uq.pending
		uq.pending = nil
	}
	q.mu.Unlock()

	for _, j := range dropped {
		j.settle(domain.ErrSessionReset)
	}
}

// Pending reports the number of queued (not yet started) tasks for userID.
func (q *Queue) Pending(userID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if uq, ok := q.users[userID]; ok {
		return len(uq.pending)
	}
	return 0
}

func (q *Queue) drain(userID int64, uq *userQueue) {
	for {
		q.mu.Lock()
		if len(uq.pending) == 0 {
			uq.running = false
			delete(q.users, userID)
			q.mu.Unlock()
			return
		}
		j := uq.pending[0]
		uq.pending = uq.pending[1:]
		q.mu.Unlock()

		// Evicted or cleared while queued; never execute it after the fact.
		if !j.claim() {
			continue
		}
		j.timer.Stop()
		err := j.run()
		j.done <- err
		close(j.done)
	}
}

// settle resolves the job without running it. Returns false if the job was
// already claimed or settled.
func (j *job) settle(err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.settled {
		return false
	}
	j.settled = true
	j.timer.Stop()
	j.done <- err
	close(j.done)
	return true
}

// claim reserves the job for execution; the worker settles it itself.
func (j *job) claim() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.settled {
		return false
	}
	j.settled = true
	return true
}
