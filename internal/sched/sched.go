// Package sched holds the hand-off primitives between the radio stack's
// goroutines and the single control loop.
package sched

import (
	"sync"
	"time"
)

// Queue is a FIFO of closures posted from any goroutine and run by the
// control loop.
type Queue struct {
	mu      sync.Mutex
	pending []func()
}

// Post appends fn. It never blocks on the control loop.
func (q *Queue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// RunPending runs every closure posted before the call, in order, and
// returns how many ran. Closures posted while running wait for the next call.
func (q *Queue) RunPending() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Job is a single-shot deferred call. Scheduling an already pending job
// keeps the earlier due time, so the job runs at most once per schedule
// and a pending run is never dropped. Only the control loop may touch it.
type Job struct {
	fn      func(now time.Time)
	pending bool
	due     time.Time
	running bool
}

// NewJob wraps fn.
func NewJob(fn func(now time.Time)) *Job {
	return &Job{fn: fn}
}

// Schedule marks the job to run on the next RunDue.
func (j *Job) Schedule() {
	j.ScheduleAt(time.Time{})
}

// ScheduleAt marks the job to run on the first RunDue at or after t.
// If the job is already pending the earlier time wins.
func (j *Job) ScheduleAt(t time.Time) {
	if j.pending {
		if t.Before(j.due) {
			j.due = t
		}
		return
	}
	j.pending = true
	j.due = t
}

// RunDue runs the job if it is pending and due. The job may reschedule
// itself from fn; a nested RunDue is ignored.
func (j *Job) RunDue(now time.Time) bool {
	if !j.pending || j.running || now.Before(j.due) {
		return false
	}
	j.pending = false
	j.running = true
	defer func() { j.running = false }()
	j.fn(now)
	return true
}
