package service

import "sync"

// inflightGuard rejects concurrent work on the same key. Unlike a lock it does
// not queue waiters: the judge retries rejected callbacks, so a second delivery
// arriving while the first is still processing is turned away immediately.
type inflightGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{inflight: make(map[string]struct{})}
}

// TryAcquire claims the key. Returns false if someone already holds it.
func (g *inflightGuard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

// Release frees the key. Must be called exactly once per successful TryAcquire,
// including on error paths.
func (g *inflightGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}
