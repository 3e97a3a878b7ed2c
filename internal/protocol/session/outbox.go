package session

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// PendingEvent tracks one client event awaiting server.ack.
type PendingEvent struct {
	EventID   string
	Type      string
	ClientSeq int64
	Attempts  int
	QueuedAt  time.Time
	SentAt    time.Time
	LastError string
}

// EventOutbox stores pending client events by stable event_id. Entries are
// informational: nothing is resent automatically.
type EventOutbox struct {
	mu    sync.RWMutex
	items map[string]PendingEvent
}

func NewEventOutbox() *EventOutbox {
	return &EventOutbox{
		items: make(map[string]PendingEvent),
	}
}

func (o *EventOutbox) Upsert(item PendingEvent) {
	key := strings.TrimSpace(item.EventID)
	if key == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[key] = item
}

func (o *EventOutbox) MarkAttempt(eventID string, at time.Time, lastErr string) (PendingEvent, bool) {
	key := strings.TrimSpace(eventID)
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[key]
	if !ok {
		return PendingEvent{}, false
	}
	item.Attempts++
	item.SentAt = at
	item.LastError = strings.TrimSpace(lastErr)
	o.items[key] = item
	return item, true
}

// Ack removes eventID and reports whether it was pending.
func (o *EventOutbox) Ack(eventID string) bool {
	key := strings.TrimSpace(eventID)
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.items[key]
	delete(o.items, key)
	return ok
}

func (o *EventOutbox) Get(eventID string) (PendingEvent, bool) {
	key := strings.TrimSpace(eventID)
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[key]
	return item, ok
}

func (o *EventOutbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

// List returns pending events ordered by client_seq.
func (o *EventOutbox) List() []PendingEvent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingEvent, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientSeq == out[j].ClientSeq {
			return out[i].EventID < out[j].EventID
		}
		return out[i].ClientSeq < out[j].ClientSeq
	})
	return out
}
