// Package notify holds the single-slot ephemeral notification state surfaced
// to users. A new notification overwrites whatever is currently displayed;
// there is no queue.
package notify

import (
	"sort"
	"sync"
	"time"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

type Notification struct {
	Title       string
	Description string
	Duration    time.Duration
	Severity    Severity
}

// Center is a last-value-wins notification slot with observer support.
type Center struct {
	mu      sync.Mutex
	current *Notification
	subs    map[int]func(Notification)
	nextSub int
}

func NewCenter() *Center {
	return &Center{subs: map[int]func(Notification){}}
}

// Publish replaces the current notification and informs subscribers.
func (c *Center) Publish(n Notification) {
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	c.mu.Lock()
	saved := n
	c.current = &saved
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Notification), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

// Error publishes an error-severity notification, the shape every gateway
// failure collapses to.
func (c *Center) Error(title, description string) {
	c.Publish(Notification{Title: title, Description: description, Severity: SeverityError})
}

func (c *Center) Latest() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Notification{}, false
	}
	return *c.current, true
}

func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

func (c *Center) Subscribe(fn func(Notification)) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}
