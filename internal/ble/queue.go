package ble

import "github.com/sweeney/watertank-sensor/internal/logging"

// txEntry is one queued notification payload.
type txEntry struct {
	data     []byte
	priority bool
}

// txQueue is a bounded FIFO of outgoing payloads. Priority entries go to
// the head; overflow drops the oldest non-priority entry first.
// Not safe for concurrent use; the caller must synchronize.
type txQueue struct {
	entries  []txEntry
	capacity int
	overflow bool // true if any entry was dropped since the queue last emptied
}

func newTxQueue(capacity int) *txQueue {
	if capacity < 1 {
		capacity = DefaultQueueMax
	}
	return &txQueue{capacity: capacity}
}

// push appends data, merging it into a non-priority tail entry when both
// fit in CoalesceLimit.
func (q *txQueue) push(data []byte) {
	if n := len(q.entries); n > 0 {
		tail := &q.entries[n-1]
		if !tail.priority && len(tail.data)+len(data) <= CoalesceLimit {
			tail.data = append(tail.data, data...)
			return
		}
	}
	q.entries = append(q.entries, txEntry{data: clone(data)})
	q.trim()
}

// pushFront inserts data at the head as a priority entry.
func (q *txQueue) pushFront(data []byte) {
	q.entries = append(q.entries, txEntry{})
	copy(q.entries[1:], q.entries)
	q.entries[0] = txEntry{data: clone(data), priority: true}
	q.trim()
}

func (q *txQueue) trim() {
	for len(q.entries) > q.capacity {
		if !q.overflow {
			logging.Warnf("ble: tx queue full (%d entries), dropping oldest", q.capacity)
			q.overflow = true
		}
		q.dropOne()
	}
}

// dropOne removes the oldest non-priority entry, or the oldest entry when
// every entry is priority.
func (q *txQueue) dropOne() {
	idx := 0
	for i, e := range q.entries {
		if !e.priority {
			idx = i
			break
		}
	}
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
}

// pop removes the head entry and merges the following entry into it when
// the head is small and the result stays within CoalesceLimit.
func (q *txQueue) pop() ([]byte, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]

	if len(q.entries) > 0 && len(head.data) < smallPayload &&
		len(head.data)+len(q.entries[0].data) <= CoalesceLimit {
		head.data = append(head.data, q.entries[0].data...)
		q.entries = q.entries[1:]
	}
	if len(q.entries) == 0 {
		q.entries = nil
		q.overflow = false
	}
	return head.data, true
}

// keepLatest trims the backlog to the most recent entry.
func (q *txQueue) keepLatest() {
	if n := len(q.entries); n > 1 {
		q.entries = append(q.entries[:0], q.entries[n-1])
	}
}

func (q *txQueue) clear() {
	q.entries = nil
	q.overflow = false
}

func (q *txQueue) len() int {
	return len(q.entries)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
