package repository

import (
	"hash/fnv"
	"sync"
	"time"
)

// KeyLock serializes access per (userID, orgID) so unrelated users never
// contend on the same mutex. Idle entries are evicted periodically to bound
// memory; an entry is never evicted while a caller holds or waits on it.
type KeyLock struct {
	shards []*lockShard
	stop   chan struct{}
}

type lockShard struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

func NewKeyLock(shards int, idleEvict time.Duration) *KeyLock {
	if shards <= 0 {
		shards = 64
	}
	kl := &KeyLock{
		shards: make([]*lockShard, shards),
		stop:   make(chan struct{}),
	}
	for i := range kl.shards {
		kl.shards[i] = &lockShard{entries: make(map[string]*lockEntry)}
	}

	go func() {
		interval := idleEvict
		if interval < time.Minute {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				kl.evict(idleEvict)
			case <-kl.stop:
				return
			}
		}
	}()

	return kl
}

// Lock blocks until the caller holds the key's mutex and returns the
// matching unlock. Callers must release on every exit path.
func (kl *KeyLock) Lock(userID, orgID string) (unlock func()) {
	key := userID + "\x00" + orgID
	shard := kl.shards[kl.shardIndex(key)]

	shard.mu.Lock()
	e, ok := shard.entries[key]
	if !ok {
		e = &lockEntry{}
		shard.entries[key] = e
	}
	e.refs++
	shard.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		shard.mu.Lock()
		e.refs--
		e.lastUsed = time.Now()
		shard.mu.Unlock()
	}
}

func (kl *KeyLock) Close() {
	close(kl.stop)
}

func (kl *KeyLock) shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(kl.shards)))
}

func (kl *KeyLock) evict(idle time.Duration) {
	cutoff := time.Now().Add(-idle)
	for _, shard := range kl.shards {
		shard.mu.Lock()
		for key, e := range shard.entries {
			if e.refs == 0 && e.lastUsed.Before(cutoff) {
				delete(shard.entries, key)
			}
		}
		shard.mu.Unlock()
	}
}
