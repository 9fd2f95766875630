package dom

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Entry records one listener the engine attached.
type Entry struct {
	ID      ListenerID
	Target  Target
	Type    EventType
	Options ListenerOptions
}

// Registry is the single place the engine attaches page listeners through, so that
// everything attached during a step can be released in one call when the step settles.
// It is safe for concurrent use.
type Registry struct {
	page   Page
	logger *zap.Logger

	mu      sync.Mutex
	entries map[ListenerID]Entry
	order   []ListenerID
}

// NewRegistry creates an empty registry for page.
func NewRegistry(page Page, logger *zap.Logger) *Registry {
	return &Registry{
		page:    page,
		logger:  logger.Named("listeners"),
		entries: make(map[ListenerID]Entry),
	}
}

// Add attaches h to target and records the listener.
func (r *Registry) Add(ctx context.Context, target Target, typ EventType, opts ListenerOptions, h Handler) (ListenerID, error) {
	id, err := r.page.Listen(ctx, target, typ, opts, h)
	if err != nil {
		return "", fmt.Errorf("failed to listen for %s on %s: %w", typ, target.Kind, err)
	}

	r.mu.Lock()
	r.entries[id] = Entry{ID: id, Target: target, Type: typ, Options: opts}
	r.order = append(r.order, id)
	r.mu.Unlock()
	return id, nil
}

// Release detaches the given listeners. Unknown or already released ids are ignored.
// Entries are dropped even when the page fails to detach them; a page that can no
// longer be reached cannot deliver events either.
func (r *Registry) Release(ctx context.Context, ids ...ListenerID) {
	r.mu.Lock()
	owned := make([]ListenerID, 0, len(ids))
	for _, id := range ids {
		if _, ok := r.entries[id]; ok {
			delete(r.entries, id)
			owned = append(owned, id)
		}
	}
	r.compactLocked()
	r.mu.Unlock()

	r.detach(ctx, owned)
}

// ReleaseAll detaches every recorded listener and returns how many were released.
func (r *Registry) ReleaseAll(ctx context.Context) int {
	r.mu.Lock()
	owned := make([]ListenerID, 0, len(r.order))
	for _, id := range r.order {
		if _, ok := r.entries[id]; ok {
			owned = append(owned, id)
		}
	}
	r.entries = make(map[ListenerID]Entry)
	r.order = nil
	r.mu.Unlock()

	r.detach(ctx, owned)
	return len(owned)
}

// Len returns the number of listeners currently attached through the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries returns the attached listeners in attach order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (r *Registry) detach(ctx context.Context, ids []ListenerID) {
	// Teardown must run even when the caller's context is already cancelled.
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if err := r.page.Unlisten(ctx, id); err != nil {
			r.logger.Debug("Failed to detach listener.", zap.String("listener", string(id)), zap.Error(err))
		}
	}
}

func (r *Registry) compactLocked() {
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.entries[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
}
