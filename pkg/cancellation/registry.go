// Package cancellation tracks named cancellation sources for
// diagnostics. Sources register themselves and record why they were
// cancelled; nothing here inspects runtime internals.
package cancellation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry describes one registered cancellation source.
type Entry struct {
	Name        string
	Cancelled   bool
	CancelledAt time.Time
	Reason      string
}

// CancelFunc cancels the associated context, recording a reason.
type CancelFunc func(reason string)

// Registry maps cancellation sources to their names and recorded
// cancellation reasons.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*Entry{}}
}

// WithCancel derives a cancellable context registered under name. The
// returned CancelFunc records the reason on first use; later calls are
// no-ops.
func (r *Registry) WithCancel(ctx context.Context, name string) (context.Context, CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	entry := &Entry{Name: name}
	r.entries[name] = entry
	r.mu.Unlock()

	var once sync.Once
	return ctx, func(reason string) {
		once.Do(func() {
			r.mu.Lock()
			entry.Cancelled = true
			entry.CancelledAt = time.Now()
			entry.Reason = reason
			r.mu.Unlock()
		})
		cancel()
	}
}

// Dump returns all entries ordered by name.
func (r *Registry) Dump() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
