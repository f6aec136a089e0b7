package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/contractdesk/contractdesk/internal/contract"
	"github.com/contractdesk/contractdesk/internal/store"
)

type fakeConn struct {
	frames chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16)}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case data, ok := <-c.frames:
		if !ok {
			return 0, nil, errors.New("connection dropped")
		}
		return websocket.MessageText, data, nil
	}
}

func (c *fakeConn) Close(code websocket.StatusCode, reason string) error {
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHandleFrameUpsertsContractPayload(t *testing.T) {
	s := store.New()
	r := New("ws://example", s, Options{})

	r.handleFrame([]byte(`{"contract":{"id":42,"title":"Lease Agreement","status":"Finalized","updatedAt":"2025-03-02T00:00:00Z"}}`))

	got, ok := s.Get(42)
	if !ok || got.Status != contract.StatusFinalized {
		t.Fatalf("expected upserted contract, got %+v (present=%v)", got, ok)
	}
}

func TestHandleFrameDeletedRemovesRecord(t *testing.T) {
	s := store.New()
	s.UpsertOne(contract.Contract{ID: 42, Title: "Lease", Status: contract.StatusDraft})
	r := New("ws://example", s, Options{})

	r.handleFrame([]byte(`{"type":"deleted","contract":{"id":42}}`))

	if _, ok := s.Get(42); ok {
		t.Fatalf("expected record removed after deleted event")
	}
}

func TestHandleFrameDropsMalformedAndGuardedPayloads(t *testing.T) {
	s := store.New()
	s.UpsertOne(contract.Contract{ID: 1, Title: "Keep", Status: contract.StatusDraft})
	r := New("ws://example", s, Options{})

	for _, frame := range []string{
		`not json at all`,
		`{"contract":`,
		`{}`,
		`{"contract":{}}`,
		`{"contract":{"title":"no id","status":"Draft"}}`,
		`{"contract":"bogus"}`,
		`{"type":"deleted"}`,
		`{"type":"deleted","contract":{}}`,
	} {
		r.handleFrame([]byte(frame))
	}

	if s.Len() != 1 {
		t.Fatalf("expected store untouched by malformed frames, got %d records", s.Len())
	}
	if _, ok := s.Get(1); !ok {
		t.Fatalf("expected existing record to survive")
	}
}

func TestDeletedEventWinsOverEarlierRestUpsert(t *testing.T) {
	s := store.New()
	r := New("ws://example", s, Options{})

	s.UpsertOne(contract.Contract{ID: 42, Title: "Lease Agreement", Status: contract.StatusDraft})
	r.handleFrame([]byte(`{"type":"deleted","contract":{"id":42}}`))

	if _, ok := s.Get(42); ok {
		t.Fatalf("expected deleted event to win over the earlier upsert")
	}
}

func TestStartAppliesFramesUntilClose(t *testing.T) {
	s := store.New()
	c := newFakeConn()
	r := New("ws://example", s, Options{
		dial: func(ctx context.Context, url string) (conn, error) { return c, nil },
	})

	r.Start(context.Background())
	c.frames <- []byte(`{"contract":{"id":7,"title":"Pushed","status":"Draft","updatedAt":"2025-03-01T00:00:00Z"}}`)
	waitFor(t, "pushed contract", func() bool {
		_, ok := s.Get(7)
		return ok
	})
	waitFor(t, "open state", func() bool { return r.IsConnected() })

	r.Close()
	r.Close()
	if r.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", r.State())
	}

	// Frames delivered after teardown must not reach the store.
	select {
	case c.frames <- []byte(`{"contract":{"id":8,"title":"Late","status":"Draft"}}`):
	default:
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := s.Get(8); ok {
		t.Fatalf("expected no store mutations after close")
	}
}

func TestReconnectsAfterConnectionDrop(t *testing.T) {
	s := store.New()
	first := newFakeConn()
	second := newFakeConn()

	var mu sync.Mutex
	dials := 0
	r := New("ws://example", s, Options{
		dial: func(ctx context.Context, url string) (conn, error) {
			mu.Lock()
			defer mu.Unlock()
			dials++
			if dials == 1 {
				return first, nil
			}
			return second, nil
		},
	})

	r.Start(context.Background())
	defer r.Close()

	first.frames <- []byte(`{"contract":{"id":1,"title":"A","status":"Draft"}}`)
	waitFor(t, "first frame", func() bool {
		_, ok := s.Get(1)
		return ok
	})

	close(first.frames)

	second.frames <- []byte(`{"contract":{"id":2,"title":"B","status":"Draft"}}`)
	waitFor(t, "frame after reconnect", func() bool {
		_, ok := s.Get(2)
		return ok
	})
}

func TestDisableReconnectStopsAfterDrop(t *testing.T) {
	s := store.New()
	c := newFakeConn()
	var mu sync.Mutex
	dials := 0
	r := New("ws://example", s, Options{
		DisableReconnect: true,
		dial: func(ctx context.Context, url string) (conn, error) {
			mu.Lock()
			defer mu.Unlock()
			dials++
			return c, nil
		},
	})

	r.Start(context.Background())
	close(c.frames)

	waitFor(t, "errored state", func() bool { return r.State() == StateErrored })
	mu.Lock()
	got := dials
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected a single dial with reconnect disabled, got %d", got)
	}
	r.Close()
}
