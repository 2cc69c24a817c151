package worker

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingFulfiller struct {
	mu   sync.Mutex
	ids  []string
	done chan string
}

func newRecordingFulfiller() *recordingFulfiller {
	return &recordingFulfiller{done: make(chan string, 16)}
}

func (r *recordingFulfiller) Fulfill(ctx context.Context, externalID string) error {
	r.mu.Lock()
	r.ids = append(r.ids, externalID)
	r.mu.Unlock()
	r.done <- externalID
	return nil
}

func TestQueueProcessesJobs(t *testing.T) {
	f := newRecordingFulfiller()
	q := NewQueue(f, 8)
	q.Start(2)
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		if !q.Enqueue(id) {
			t.Fatalf("Enqueue(%q) = false, want true", id)
		}
	}

	seen := make(map[string]bool)
	timeout := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case id := <-f.done:
			seen[id] = true
		case <-timeout:
			t.Fatalf("timed out, processed %v", seen)
		}
	}
}

func TestQueueFullDropsJob(t *testing.T) {
	f := newRecordingFulfiller()
	q := NewQueue(f, 1)
	// Workers not started: the buffer fills immediately.

	if !q.Enqueue("a") {
		t.Fatal("first Enqueue() = false, want true")
	}
	if q.Enqueue("b") {
		t.Error("second Enqueue() = true, want false on full buffer")
	}
}

func TestQueueStopDrainsBuffer(t *testing.T) {
	f := newRecordingFulfiller()
	q := NewQueue(f, 8)

	q.Enqueue("a")
	q.Enqueue("b")

	q.Start(1)
	q.Stop()

	f.mu.Lock()
	n := len(f.ids)
	f.mu.Unlock()
	if n != 2 {
		t.Errorf("processed %d jobs before stop, want 2", n)
	}
}
