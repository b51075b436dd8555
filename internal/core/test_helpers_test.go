package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recorder is an Outbound that keeps everything it receives.
type recorder struct {
	mu     sync.Mutex
	texts  []string
	closed bool
}

func (r *recorder) Enqueue(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRelayClosed
	}
	r.texts = append(r.texts, text)
	return nil
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.texts))
	copy(out, r.texts)
	return out
}

// chanWriter is a Writer that hands every payload to a channel.
type chanWriter struct {
	out  chan string
	fail error
}

func newChanWriter() *chanWriter {
	return &chanWriter{out: make(chan string, 64)}
}

func (w *chanWriter) WriteText(ctx context.Context, text string) error {
	if w.fail != nil {
		return w.fail
	}
	select {
	case w.out <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errPeerGone = errors.New("peer gone")

func mustReceive(t *testing.T, ch <-chan string, want string) {
	t.Helper()

	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %q not received", want)
	}
}

func mustBeQuiet(t *testing.T, ch <-chan string) {
	t.Helper()

	select {
	case got := <-ch:
		t.Fatalf("unexpected message %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func equalTexts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkConsistency verifies that room membership and client records agree.
func checkConsistency(t *testing.T, d *Directory) {
	t.Helper()

	d.mu.Lock()
	defer d.mu.Unlock()

	for room, members := range d.rooms {
		for id := range members {
			rec, ok := d.clients[id]
			if !ok {
				t.Fatalf("room %q lists %d without a record", room, id)
			}
			if rec.Room != room {
				t.Fatalf("room %q lists %d whose record says %q", room, id, rec.Room)
			}
		}
		if len(members) == 0 && room != d.defaultRoom {
			t.Fatalf("empty room %q was not pruned", room)
		}
	}
	for id, rec := range d.clients {
		if _, ok := d.rooms[rec.Room][id]; !ok {
			t.Fatalf("record %d in %q missing from member set", id, rec.Room)
		}
	}
	if _, ok := d.rooms[d.defaultRoom]; !ok {
		t.Fatalf("default room %q missing", d.defaultRoom)
	}
}
