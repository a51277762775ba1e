package audit

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder decouples the response path from audit persistence: Record
// never blocks and never returns an error. A single supervised writer
// goroutine drains a bounded queue into the sink; when the queue is full
// the entry is dropped and counted rather than applying back-pressure to
// the request.
type Recorder struct {
	sink    Sink
	queue   chan Entry
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewRecorder(sink Sink, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &Recorder{
		sink:  sink,
		queue: make(chan Entry, queueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an entry. Fire-and-forget: failures surface on the
// fallback log and in counters, never to the caller. An entry arriving
// after Close counts as dropped rather than panicking on the closed
// queue.
func (r *Recorder) Record(e Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		log.Printf("audit: recorder closed, dropped %s %s (request %s)", e.Method, e.Path, e.RequestID)
		return
	}
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
		log.Printf("audit: queue full, dropped %s %s (request %s)", e.Method, e.Path, e.RequestID)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		r.store(e)
	}
}

// store writes one entry, containing both sink errors and panics so an
// audit failure can never crash the serving process.
func (r *Recorder) store(e Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			r.failed.Add(1)
			log.Printf("audit: sink panic recovered: %v", rec)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.sink.Store(ctx, e); err != nil {
		r.failed.Add(1)
		log.Printf("audit: sink write failed for request %s: %v", e.RequestID, err)
	}
}

// Close drains the queue and stops the writer. Bounded by ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.queue)
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports entries lost to a full queue.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Failed reports entries the sink refused.
func (r *Recorder) Failed() int64 { return r.failed.Load() }

// QueueDepth reports the current backlog, for gauges.
func (r *Recorder) QueueDepth() int { return len(r.queue) }
