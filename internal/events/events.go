// Package events carries state-transition notifications from the background
// engines to the presentation layer. The engines publish; the API layer's
// event stream subscribes.
package events

import (
	"sync"
	"time"
)

// Type names an outward event.
type Type string

const (
	// CollectionSyncUpdated fires when a collection's sync_status changes.
	CollectionSyncUpdated Type = "collection-sync-updated"
	// ItemSyncUpdated fires when an item's upload starts or fails.
	ItemSyncUpdated Type = "item-sync-updated"
	// ItemStatusUpdated fires when the polling engine resolves an item's
	// remote operation.
	ItemStatusUpdated Type = "item-status-updated"
)

// CollectionSyncPayload accompanies [CollectionSyncUpdated].
type CollectionSyncPayload struct {
	CollectionID string `json:"collectionId"`
	SyncStatus   string `json:"syncStatus"`
	RemoteName   string `json:"remoteName,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ItemSyncPayload accompanies [ItemSyncUpdated].
type ItemSyncPayload struct {
	ItemID        string `json:"itemId"`
	CollectionID  string `json:"collectionId"`
	SyncStatus    string `json:"syncStatus"`
	RemoteName    string `json:"remoteName,omitempty"`
	OperationName string `json:"operationName,omitempty"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

// ItemStatusPayload accompanies [ItemStatusUpdated].
type ItemStatusPayload struct {
	ItemID       string `json:"itemId"`
	CollectionID string `json:"collectionId"`
	RemoteName   string `json:"remoteName,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// Event is a typed payload with its emission time.
type Event struct {
	Type    Type      `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// that has fallen behind by more than its buffer misses events rather than
// stalling an engine.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. The channel is closed on cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every current subscriber without blocking.
func (b *Bus) Publish(t Type, payload any) {
	ev := Event{Type: t, Time: time.Now().UTC(), Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
