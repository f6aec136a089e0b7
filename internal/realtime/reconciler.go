// Package realtime maintains the push connection to the contract API and
// applies inbound change events to the entity store, racing freely against
// REST-driven writes. The store's last-write-wins rule is the only ordering
// guarantee across the two paths.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"nhooyr.io/websocket"

	"github.com/contractdesk/contractdesk/internal/contract"
)

const (
	defaultMaxReconnectInterval = 20 * time.Second
	readLimit                   = 1024 * 1024
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Store is the slice of the entity store the reconciler writes into.
type Store interface {
	UpsertOne(contract.Contract)
	Remove(int64)
}

// envelope is the inbound frame shape: {type?, contract?}.
type envelope struct {
	Type     string          `json:"type"`
	Contract json.RawMessage `json:"contract"`
}

type conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(code websocket.StatusCode, reason string) error
}

type dialFunc func(ctx context.Context, url string) (conn, error)

type Options struct {
	// MaxReconnectInterval caps the exponential reconnect backoff.
	MaxReconnectInterval time.Duration
	// DisableReconnect stops the loop after the first connection ends.
	DisableReconnect bool
	Logger           *slog.Logger

	dial dialFunc
}

// Reconciler owns one long-lived push connection per session. Start it once
// on session mount and Close it exactly once on teardown.
type Reconciler struct {
	url                  string
	store                Store
	logger               *slog.Logger
	maxReconnectInterval time.Duration
	reconnect            bool
	dial                 dialFunc

	state     atomic.Int32
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func New(url string, store Store, opts Options) *Reconciler {
	maxInterval := opts.MaxReconnectInterval
	if maxInterval <= 0 {
		maxInterval = defaultMaxReconnectInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dial := opts.dial
	if dial == nil {
		dial = func(ctx context.Context, target string) (conn, error) {
			c, _, err := websocket.Dial(ctx, target, nil)
			if err != nil {
				return nil, err
			}
			c.SetReadLimit(readLimit)
			return c, nil
		}
	}
	r := &Reconciler{
		url:                  url,
		store:                store,
		logger:               logger,
		maxReconnectInterval: maxInterval,
		reconnect:            !opts.DisableReconnect,
		dial:                 dial,
	}
	r.state.Store(int32(StateConnecting))
	return r
}

// Start launches the connection loop. It returns immediately; connection
// state is observable through State().
func (r *Reconciler) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		r.cancel = cancel
		r.done = make(chan struct{})
		go r.connectLoop(runCtx)
	})
}

// Close tears the connection down and waits for the loop to exit. It is
// idempotent; no store mutations are emitted after it returns.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		if r.done != nil {
			<-r.done
		}
		r.state.Store(int32(StateClosed))
	})
}

func (r *Reconciler) State() State {
	return State(r.state.Load())
}

func (r *Reconciler) IsConnected() bool {
	return r.State() == StateOpen
}

func (r *Reconciler) connectLoop(ctx context.Context) {
	defer close(r.done)

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = r.maxReconnectInterval

	for {
		select {
		case <-ctx.Done():
			r.state.Store(int32(StateClosed))
			return
		default:
		}

		r.state.Store(int32(StateConnecting))
		c, err := r.dial(ctx, r.url)
		if err != nil {
			if ctx.Err() != nil {
				r.state.Store(int32(StateClosed))
				return
			}
			r.state.Store(int32(StateErrored))
			r.logger.Warn("push connection dial failed", slog.String("url", r.url), slog.Any("err", err))
			if !r.reconnect {
				return
			}
			if !r.sleep(ctx, backoffCfg) {
				return
			}
			continue
		}

		r.state.Store(int32(StateOpen))
		r.logger.Info("push connection open", slog.String("url", r.url))
		backoffCfg.Reset()

		readErr := r.readLoop(ctx, c)
		_ = c.Close(websocket.StatusNormalClosure, "")

		if ctx.Err() != nil {
			r.state.Store(int32(StateClosed))
			return
		}
		r.state.Store(int32(StateErrored))
		r.logger.Warn("push connection lost", slog.Any("err", readErr))
		if !r.reconnect {
			return
		}
		if !r.sleep(ctx, backoffCfg) {
			return
		}
	}
}

func (r *Reconciler) sleep(ctx context.Context, backoffCfg *backoff.ExponentialBackOff) bool {
	delay := backoffCfg.NextBackOff()
	if delay == backoff.Stop {
		delay = r.maxReconnectInterval
	}
	select {
	case <-ctx.Done():
		r.state.Store(int32(StateClosed))
		return false
	case <-time.After(delay):
		return true
	}
}

func (r *Reconciler) readLoop(ctx context.Context, c conn) error {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return err
		}
		r.handleFrame(data)
	}
}

// handleFrame applies one inbound frame. Malformed frames are dropped
// silently; transient garbage on the push channel must not surface to users.
// A frame whose contract payload lacks a positive id is dropped too, never
// upserted.
func (r *Reconciler) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	if env.Type == "deleted" {
		var ref struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(env.Contract, &ref); err != nil || ref.ID <= 0 {
			return
		}
		r.store.Remove(ref.ID)
		return
	}

	if len(env.Contract) == 0 {
		return
	}
	var record contract.Contract
	if err := json.Unmarshal(env.Contract, &record); err != nil || record.ID <= 0 {
		return
	}
	r.store.UpsertOne(record)
}
