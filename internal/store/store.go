// Package store holds the normalized client-side cache of contract records.
// It is the single source of truth shared by the REST gateway and the
// real-time reconciler; whichever of the two writes last wins.
package store

import (
	"sort"
	"sync"

	"github.com/contractdesk/contractdesk/internal/contract"
)

type Op string

const (
	OpUpsert Op = "upsert"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
)

// Change describes one applied mutation. Contract is populated for upserts
// only; ID is zero for clears.
type Change struct {
	Op       Op
	ID       int64
	Contract contract.Contract
}

// Stats is a point-in-time snapshot of mutation counters.
type Stats struct {
	Upserts  uint64 `json:"upserts"`
	Removals uint64 `json:"removals"`
	Clears   uint64 `json:"clears"`
	Size     int    `json:"size"`
}

// Store maps contract id to the most recently applied record for that id.
// Every mutation fully replaces the prior record; no field-level merging and
// no validation happen at this layer. Subscribers observe mutations
// synchronously in the order they were applied.
type Store struct {
	notifyMu sync.Mutex
	mu       sync.RWMutex
	records  map[int64]contract.Contract
	subs     map[int]func(Change)
	nextSub  int
	upserts  uint64
	removals uint64
	clears   uint64
}

func New() *Store {
	return &Store{
		records: map[int64]contract.Contract{},
		subs:    map[int]func(Change){},
	}
}

// UpsertOne inserts the record if its id is absent, otherwise replaces the
// existing record wholesale. Applying the same record twice is a no-op for
// final state.
func (s *Store) UpsertOne(record contract.Contract) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.records[record.ID] = record
	s.upserts++
	s.mu.Unlock()

	s.fanOut(Change{Op: OpUpsert, ID: record.ID, Contract: record})
}

// UpsertMany applies UpsertOne semantics for each record. When the batch
// carries duplicate ids the later element wins.
func (s *Store) UpsertMany(records []contract.Contract) {
	if len(records) == 0 {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	for _, record := range records {
		s.records[record.ID] = record
		s.upserts++
	}
	s.mu.Unlock()

	for _, record := range records {
		s.fanOut(Change{Op: OpUpsert, ID: record.ID, Contract: record})
	}
}

// Remove deletes the entry for id; removing an absent id is a no-op and
// notifies nobody.
func (s *Store) Remove(id int64) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	_, present := s.records[id]
	if present {
		delete(s.records, id)
		s.removals++
	}
	s.mu.Unlock()

	if present {
		s.fanOut(Change{Op: OpRemove, ID: id})
	}
}

// Clear resets the store to empty.
func (s *Store) Clear() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.records = map[int64]contract.Contract{}
	s.clears++
	s.mu.Unlock()

	s.fanOut(Change{Op: OpClear})
}

func (s *Store) Get(id int64) (contract.Contract, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	return record, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns all records ordered by id.
func (s *Store) Snapshot() []contract.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contract.Contract, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Upserts:  s.upserts,
		Removals: s.removals,
		Clears:   s.clears,
		Size:     len(s.records),
	}
}

// Subscribe registers fn for every subsequent mutation and returns an
// unsubscribe func. Callbacks run synchronously in mutation order and must
// not mutate the store; reads are fine.
func (s *Store) Subscribe(fn func(Change)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// fanOut runs under notifyMu but not mu, so callbacks can read the store.
func (s *Store) fanOut(change Change) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}
