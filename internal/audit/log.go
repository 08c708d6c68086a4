// Package audit implements the append-only, per-tenant audit log (§4.8):
// idempotent inserts keyed on event_id and a causal chain threaded through
// previous_event_id.
package audit

import (
	"context"
	"sync"

	"ingestpipe/internal/domain"
)

// Log persists Events and resolves each tenant's chain head so a caller
// emitting a new event doesn't need to track previous_event_id itself.
type Log interface {
	// Append inserts event, filling PreviousEventID from the tenant's
	// current chain head if it is nil. Re-appending an event_id that
	// already exists is a no-op (idempotent producer retries).
	Append(ctx context.Context, event domain.Event) error
	// ListByResource returns events for one resource in chain order,
	// oldest first, for the chain-of-custody view (§4.8).
	ListByResource(ctx context.Context, tenantID, resourceType, resourceID string) ([]domain.Event, error)
	// Head returns the most recent event_id recorded for tenantID, or
	// "" if the tenant has no events yet.
	Head(ctx context.Context, tenantID string) (string, error)
}

// MemoryLog is an in-process Log used for offline mode and tests.
type MemoryLog struct {
	mu     sync.RWMutex
	events map[string]domain.Event   // event_id -> event
	order  map[string][]string       // tenant_id -> event_ids in insert order
	heads  map[string]string         // tenant_id -> last event_id
}

// NewMemoryLog returns an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		events: make(map[string]domain.Event),
		order:  make(map[string][]string),
		heads:  make(map[string]string),
	}
}

func (l *MemoryLog) Append(_ context.Context, event domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.events[event.EventID]; exists {
		return nil
	}

	if event.PreviousEventID == nil {
		if head, ok := l.heads[event.TenantID]; ok && head != "" {
			h := head
			event.PreviousEventID = &h
		}
	}

	l.events[event.EventID] = event
	l.order[event.TenantID] = append(l.order[event.TenantID], event.EventID)
	l.heads[event.TenantID] = event.EventID
	return nil
}

func (l *MemoryLog) ListByResource(_ context.Context, tenantID, resourceType, resourceID string) ([]domain.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Event
	for _, id := range l.order[tenantID] {
		e := l.events[id]
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *MemoryLog) Head(_ context.Context, tenantID string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.heads[tenantID], nil
}
