package service

import (
	"fmt"
	"sync"
)

// Guard hands out process-local, non-blocking locks keyed by string.
// It does not coordinate across processes.
type Guard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{held: make(map[string]struct{})}
}

// TryAcquire returns ok=false immediately when key is already held. The returned release
// func is safe to call more than once.
func (g *Guard) TryAcquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return func() {}, false
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, true
}

func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}

func PostKey(postID int64) string {
	return fmt.Sprintf("post:%d", postID)
}

func PairKey(postID, accountID int64) string {
	return fmt.Sprintf("post:%d:account:%d", postID, accountID)
}
