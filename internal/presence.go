package internal

import "sync"

// PresenceTracker keeps counts of active watcher connections per room code.
type PresenceTracker struct {
	mu       sync.Mutex
	watchers map[string]int
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{watchers: make(map[string]int)}
}

func (p *PresenceTracker) Watch(code string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchers[code]++
	return p.watchers[code]
}

func (p *PresenceTracker) Unwatch(code string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count, ok := p.watchers[code]; ok {
		if count <= 1 {
			delete(p.watchers, code)
			return 0
		}
		p.watchers[code] = count - 1
		return p.watchers[code]
	}
	return 0
}

// Watchers returns the current connection count for a room.
func (p *PresenceTracker) Watchers(code string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watchers[code]
}

// ActiveRooms counts rooms with at least one watcher.
func (p *PresenceTracker) ActiveRooms() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watchers)
}
