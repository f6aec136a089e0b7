package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contractdesk/contractdesk/internal/contract"
	"github.com/contractdesk/contractdesk/internal/gateway"
	"github.com/contractdesk/contractdesk/internal/notify"
	"github.com/contractdesk/contractdesk/internal/store"
)

// Covers the create-then-push race end to end: a POST-created contract is
// inserted by its caller while the push channel delivers a newer version of
// the same record; whichever write lands last determines the final state.
func TestCreateInsertRacesPushEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/contracts":
			w.Write([]byte(`{"id":42,"title":"Lease Agreement","status":"Draft","updatedAt":"2025-03-01T00:00:00Z"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/contracts" && r.URL.Query().Get("id") == "42":
			w.Write([]byte(`{"contracts":[{"id":42,"title":"Lease Agreement","status":"Draft","updatedAt":"2025-03-01T00:00:00Z"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	s := store.New()
	center := notify.NewCenter()
	gw := gateway.New(gateway.NewClient(server.URL, server.Client()), s, center, gateway.Options{WriteDelay: time.Millisecond})
	r := New("ws://example", s, Options{})

	created, err := gw.Create(context.Background(), contract.Draft{Title: "Lease Agreement", Status: contract.StatusDraft})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Push event for the same id arrives first, then the caller inserts the
	// create response: the later write wins.
	r.handleFrame([]byte(`{"contract":{"id":42,"title":"Lease Agreement","status":"Finalized","updatedAt":"2025-03-01T00:00:05Z"}}`))
	s.UpsertOne(created)

	got, _ := s.Get(42)
	if got.Status != contract.StatusDraft {
		t.Fatalf("expected the later caller insert to win, got %+v", got)
	}

	// Opposite interleaving: the push event lands last and wins.
	s.UpsertOne(created)
	r.handleFrame([]byte(`{"contract":{"id":42,"title":"Lease Agreement","status":"Finalized","updatedAt":"2025-03-01T00:00:05Z"}}`))
	got, _ = s.Get(42)
	if got.Status != contract.StatusFinalized {
		t.Fatalf("expected the later push event to win, got %+v", got)
	}

	// The record is cached: GetByID resolves against the API and re-upserts,
	// but the store keeps one entry for id 42 throughout.
	if _, err := gw.GetByID(context.Background(), 42); err != nil {
		t.Fatalf("get by id failed: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected a single normalized entry for id 42, got %d", s.Len())
	}
}
