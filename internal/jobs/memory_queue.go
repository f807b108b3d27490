package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/driftline/scriptweave/pkg/models"
)

// MemoryQueue is an in-process Queue for tests and single-process runs.
type MemoryQueue struct {
	mu          sync.Mutex
	queue       []models.Job
	subscribers []chan struct{}
	now         func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{now: time.Now}
}

func (q *MemoryQueue) List() ([]models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Job, len(q.queue))
	copy(out, q.queue)
	return out, nil
}

func (q *MemoryQueue) Enqueue(job models.Job) (models.Job, error) {
	q.mu.Lock()
	job = prepare(job, q.now())
	q.queue = append(q.queue, job)
	q.mu.Unlock()
	q.notify()
	return job, nil
}

func (q *MemoryQueue) Update(id string, status models.JobStatus) error {
	q.mu.Lock()
	found := false
	for i := range q.queue {
		if q.queue[i].ID == id {
			q.queue[i].Status = status
			q.queue[i].UpdatedAt = q.now()
			found = true
			break
		}
	}
	q.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	q.notify()
	return nil
}

func (q *MemoryQueue) Remove(id string) error {
	q.mu.Lock()
	found := false
	for i := range q.queue {
		if q.queue[i].ID == id {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			found = true
			break
		}
	}
	q.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	q.notify()
	return nil
}

func (q *MemoryQueue) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	q.mu.Lock()
	q.subscribers = append(q.subscribers, ch)
	q.mu.Unlock()
	return ch
}

func (q *MemoryQueue) Close() error { return nil }

func (q *MemoryQueue) notify() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
