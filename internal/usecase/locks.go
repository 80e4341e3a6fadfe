package usecase

import (
	"strings"
	"sync"
)

// keyedMutex serializes operations per key. Mutation of one active pickup is
// the natural unit of mutual exclusion, so keys are "community/configID".
// Entries are never evicted; the key space is bounded by configured pickups.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// pendingRegistry tracks which players are held by a pickup in a pending
// stage. Held players may not add to any other pickup in the same community
// until their pickup leaves the pending stage. An explicit registry keyed by
// (community, player) replaces ambient shared flags.
type pendingRegistry struct {
	mu   sync.RWMutex
	held map[string]string // community/playerID -> configID holding the lock
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{held: make(map[string]string)}
}

func pendingKey(community, playerID string) string {
	return community + "/" + playerID
}

func (r *pendingRegistry) Hold(community, configID string, playerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range playerIDs {
		r.held[pendingKey(community, id)] = configID
	}
}

func (r *pendingRegistry) Release(community, configID string) {
	prefix := community + "/"
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, holder := range r.held {
		if holder == configID && strings.HasPrefix(key, prefix) {
			delete(r.held, key)
		}
	}
}

// HeldBy returns the config holding the player, if any.
func (r *pendingRegistry) HeldBy(community, playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	configID, ok := r.held[pendingKey(community, playerID)]
	return configID, ok
}
