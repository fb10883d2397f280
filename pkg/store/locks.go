package store

import "sync"

// Keyed mutex registry. Every mutation touching one capsule's state (its
// record, memories, galleries, grants, invites) holds the capsule's lock,
// giving single-writer-per-capsule semantics; concurrency exists only
// across capsules. Callers also take prefixed keys for serialization that
// predates a capsule id ("self:<identity>") or is narrower than one
// ("link:<link_id>").
var (
	keyedLocks = make(map[string]*sync.Mutex)
	locksMu    sync.Mutex
)

func getKeyedLock(key string) *sync.Mutex {
	locksMu.Lock()
	defer locksMu.Unlock()
	if l, ok := keyedLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	keyedLocks[key] = l
	return l
}

// LockCapsule serializes mutations for one lock key, usually a capsule id;
// the returned func releases the lock.
func LockCapsule(key string) func() {
	l := getKeyedLock(key)
	l.Lock()
	return l.Unlock
}
