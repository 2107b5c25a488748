package orchestrator

import (
	"sync"

	"github.com/sourcestack/resume-batch/internal/entity"
)

type queuedJob struct {
	jobID   string
	request entity.BatchRequest
}

// jobQueue is an unbounded FIFO with a single consumer. Enqueueing never
// blocks, so producers cannot stall behind a slow batch.
type jobQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []queuedJob
	closed bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends a job. It reports false once the queue has been closed.
func (q *jobQueue) push(job queuedJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, job)
	q.cond.Signal()
	return true
}

// pop blocks until a job is available or the queue is closed and drained.
func (q *jobQueue) pop() (queuedJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return queuedJob{}, false
	}
	job := q.items[0]
	q.items = q.items[1:]
	return job, true
}

// close stops intake; pop keeps returning queued jobs until drained.
func (q *jobQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}
