package ble

import (
	"sort"
	"time"

	"github.com/sweeney/watertank-sensor/internal/logging"
	"github.com/sweeney/watertank-sensor/internal/sched"
)

var (
	_ Events   = (*Transport)(nil)
	_ Notifier = (*Transport)(nil)
)

// Options configures a Transport. Zero values select the defaults.
type Options struct {
	QueueMax     int
	RXBufferMax  int
	SendInterval time.Duration // minimum gap between drains; 0 disables
}

// Transport implements the command/telemetry channel on top of a Link.
//
// Radio events may arrive on any goroutine; they are posted to the control
// loop's queue. Everything else, including Notify, runs on the control loop.
type Transport struct {
	link  Link
	posts *sched.Queue

	rx      *lineFramer
	lines   []string
	handler Handler
	rxJob   *sched.Job

	tx       *txQueue
	txJob    *sched.Job
	interval time.Duration
	lastSend time.Time

	conns map[ConnHandle]struct{}

	// sleep paces chunks; tests replace it.
	sleep func(time.Duration)
}

// New creates a Transport. posts receives the radio events for the
// control loop.
func New(link Link, posts *sched.Queue, opts Options) *Transport {
	t := &Transport{
		link:     link,
		posts:    posts,
		rx:       newLineFramer(opts.RXBufferMax),
		tx:       newTxQueue(opts.QueueMax),
		interval: opts.SendInterval,
		conns:    make(map[ConnHandle]struct{}),
		sleep:    time.Sleep,
	}
	t.rxJob = sched.NewJob(t.dispatch)
	t.txJob = sched.NewJob(t.Drain)
	return t
}

// Open builds a Transport on the BlueZ stack. The returned link must be
// closed by the caller.
func Open(name string, posts *sched.Queue, opts Options) (*Transport, *BlueZLink, error) {
	t := New(nil, posts, opts)
	link, err := NewBlueZLink(name, t)
	if err != nil {
		return nil, nil, err
	}
	t.link = link
	return t, link, nil
}

// SetHandler sets the command handler.
func (t *Transport) SetHandler(h Handler) {
	t.handler = h
}

// Start begins advertising.
func (t *Transport) Start() error {
	return t.link.Advertise()
}

// Connected implements Events.
func (t *Transport) Connected(conn ConnHandle) {
	t.posts.Post(func() {
		t.conns[conn] = struct{}{}
		logging.Infof("ble: connected (conn %d)", conn)
		if t.tx.len() > 0 {
			t.txJob.Schedule()
		}
	})
}

// Disconnected implements Events. Advertising restarts.
func (t *Transport) Disconnected(conn ConnHandle) {
	t.posts.Post(func() {
		delete(t.conns, conn)
		logging.Infof("ble: disconnected (conn %d)", conn)
		if err := t.link.Advertise(); err != nil {
			logging.Warnf("ble: advertise: %v", err)
		}
	})
}

// Received implements Events. data is copied before the call returns.
func (t *Transport) Received(conn ConnHandle, data []byte) {
	b := clone(data)
	t.posts.Post(func() {
		lines := t.rx.feed(b)
		if len(lines) == 0 {
			return
		}
		t.lines = append(t.lines, lines...)
		t.rxJob.Schedule()
	})
}

// Service runs the pending command dispatch and one drain step if due.
// Called once per control tick after the posted events ran.
func (t *Transport) Service(now time.Time) {
	t.rxJob.RunDue(now)
	t.txJob.RunDue(now)
}

// dispatch hands every framed line to the handler exactly once.
func (t *Transport) dispatch(now time.Time) {
	lines := t.lines
	t.lines = nil
	for _, line := range lines {
		if t.handler != nil {
			t.handler(line, now)
		}
	}
}

// Notify queues payload for every connection. A trailing newline is added
// so coalesced payloads stay separable.
func (t *Transport) Notify(payload []byte) {
	if len(payload) == 0 {
		return
	}
	t.tx.push(terminate(payload))
	t.txJob.Schedule()
}

// NotifyPriority queues payload ahead of everything else.
func (t *Transport) NotifyPriority(payload []byte) {
	if len(payload) == 0 {
		return
	}
	t.tx.pushFront(terminate(payload))
	t.txJob.Schedule()
}

// ClearBacklog drops every queued payload.
func (t *Transport) ClearBacklog() {
	t.tx.clear()
}

// Drain is one send step. Without connections the backlog is trimmed to
// the latest entry. Otherwise one entry (plus a small successor) is sent
// in paced chunks to every connection; connections that fail are dropped.
func (t *Transport) Drain(now time.Time) {
	if len(t.conns) == 0 {
		t.tx.keepLatest()
		return
	}
	if t.tx.len() == 0 {
		return
	}
	if t.interval > 0 && !t.lastSend.IsZero() {
		if next := t.lastSend.Add(t.interval); now.Before(next) {
			t.txJob.ScheduleAt(next)
			return
		}
	}

	payload, _ := t.tx.pop()
	for _, conn := range t.connections() {
		if err := t.send(conn, payload); err != nil {
			logging.Warnf("ble: notify conn %d: %v, dropping connection", conn, err)
			delete(t.conns, conn)
		}
	}
	t.lastSend = now

	if t.tx.len() > 0 {
		t.txJob.Schedule()
	}
}

func (t *Transport) send(conn ConnHandle, payload []byte) error {
	for _, chunk := range Chunks(payload, ChunkSize) {
		if err := t.link.Notify(conn, chunk); err != nil {
			return err
		}
		t.sleep(ChunkDelay)
	}
	return nil
}

// connections returns the open handles in ascending order.
func (t *Transport) connections() []ConnHandle {
	out := make([]ConnHandle, 0, len(t.conns))
	for c := range t.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Connections returns the number of open connections.
func (t *Transport) Connections() int {
	return len(t.conns)
}

// Backlog returns the number of queued entries.
func (t *Transport) Backlog() int {
	return t.tx.len()
}

// Chunks splits p into consecutive slices of at most size bytes.
func Chunks(p []byte, size int) [][]byte {
	if size < 1 {
		size = ChunkSize
	}
	var out [][]byte
	for len(p) > size {
		out = append(out, p[:size])
		p = p[size:]
	}
	if len(p) > 0 {
		out = append(out, p)
	}
	return out
}

func terminate(p []byte) []byte {
	if p[len(p)-1] == '\n' {
		return p
	}
	out := make([]byte, len(p)+1)
	copy(out, p)
	out[len(p)] = '\n'
	return out
}
