package server

import "sync"

// BroadcastRegistry is the one-to-one mapping from broadcastId to the
// publisher's connection handle. Mutations are keyed by
// broadcastId; a single mutex over the whole map suffices since each
// operation is O(1) and never blocks on I/O.
type BroadcastRegistry struct {
	mu         sync.Mutex
	publishers map[string]*Connection
}

func NewBroadcastRegistry() *BroadcastRegistry {
	return &BroadcastRegistry{publishers: make(map[string]*Connection)}
}

// CreateOrReplace registers conn as the publisher for broadcastId. It
// succeeds if no publisher is currently registered, or if the current
// publisher is this same connection (idempotent re-create). It fails
// if a different connection already owns the id — collisions are not
// silently overwritten.
func (b *BroadcastRegistry) CreateOrReplace(broadcastId string, conn *Connection) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.publishers[broadcastId]; ok && existing != conn {
		return false
	}

	b.publishers[broadcastId] = conn
	return true
}

func (b *BroadcastRegistry) Lookup(broadcastId string) (*Connection, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, ok := b.publishers[broadcastId]
	return conn, ok
}

// RemoveIfOwner removes the registry entry only if conn is still the
// registered publisher, so a stale cleanup from a since-replaced
// connection can't evict the new owner.
func (b *BroadcastRegistry) RemoveIfOwner(broadcastId string, conn *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.publishers[broadcastId]; ok && existing == conn {
		delete(b.publishers, broadcastId)
	}
}
