package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type blockingSink struct {
	MemorySink
	release chan struct{}
}

func (s *blockingSink) Store(ctx context.Context, e Entry) error {
	<-s.release
	return s.MemorySink.Store(ctx, e)
}

type erroringSink struct{ MemorySink }

func (s *erroringSink) Store(ctx context.Context, e Entry) error {
	return errors.New("disk full")
}

type panickySink struct{ MemorySink }

func (s *panickySink) Store(ctx context.Context, e Entry) error {
	panic("sink bug")
}

func TestRecorder_DeliversToSink(t *testing.T) {
	sink := NewMemorySink()
	r := NewRecorder(sink, 16)
	r.Record(Entry{RequestID: "r1", Method: "GET", Path: "/v1/cases"})
	r.Record(Entry{RequestID: "r2", Method: "POST", Path: "/v1/cases"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	got := sink.Entries()
	if len(got) != 2 {
		t.Fatalf("stored %d entries, want 2", len(got))
	}
	if got[0].RequestID != "r1" || got[1].RequestID != "r2" {
		t.Fatalf("entries out of order: %+v", got)
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	r := NewRecorder(sink, 1)

	// first entry occupies the writer, second fills the queue,
	// the third has nowhere to go
	r.Record(Entry{RequestID: "r1"})
	waitFor(t, func() bool { return r.QueueDepth() == 0 })
	r.Record(Entry{RequestID: "r2"})
	r.Record(Entry{RequestID: "r3"})

	if r.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", r.Dropped())
	}

	close(sink.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := len(sink.Entries()); n != 2 {
		t.Fatalf("stored %d entries, want 2", n)
	}
}

func TestRecorder_CountsSinkFailures(t *testing.T) {
	r := NewRecorder(&erroringSink{}, 16)
	r.Record(Entry{RequestID: "r1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if r.Failed() != 1 {
		t.Fatalf("failed = %d, want 1", r.Failed())
	}
}

func TestRecorder_SurvivesSinkPanic(t *testing.T) {
	r := NewRecorder(&panickySink{}, 16)
	r.Record(Entry{RequestID: "r1"})
	r.Record(Entry{RequestID: "r2"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("writer did not survive the panic: %v", err)
	}
	if r.Failed() != 2 {
		t.Fatalf("failed = %d, want 2", r.Failed())
	}
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	sink := NewMemorySink()
	r := NewRecorder(sink, 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	r.Record(Entry{RequestID: "late"})

	if r.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", r.Dropped())
	}
	if n := len(sink.Entries()); n != 0 {
		t.Fatalf("stored %d entries after close, want 0", n)
	}
}

func TestRecorder_CloseIdempotent(t *testing.T) {
	r := NewRecorder(NewMemorySink(), 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMemorySink_QueryAndCleanup(t *testing.T) {
	sink := NewMemorySink()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		{OrgID: "org-1", Event: EventDataRead, Time: base},
		{OrgID: "org-1", Event: EventAuthFailure, Time: base.Add(time.Hour)},
		{OrgID: "org-2", Event: EventDataRead, Time: base.Add(2 * time.Hour)},
	}
	for _, e := range entries {
		if err := sink.Store(context.Background(), e); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	got, err := sink.Query(context.Background(), Filter{OrgID: "org-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("org filter returned %d entries, want 2", len(got))
	}

	got, err = sink.Query(context.Background(), Filter{Event: EventAuthFailure})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].OrgID != "org-1" {
		t.Fatalf("event filter: %+v", got)
	}

	removed, err := sink.Cleanup(context.Background(), base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if n := len(sink.Entries()); n != 2 {
		t.Fatalf("kept %d entries, want 2", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
