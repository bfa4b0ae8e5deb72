package store

import "sync"

// changes fans out "something changed for this child" signals. Signals are
// coalesced: a slow subscriber sees at most one pending wakeup.
type changes struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newChanges() *changes {
	return &changes{subs: make(map[string]map[chan struct{}]struct{})}
}

func (c *changes) subscribe(childID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	if c.subs[childID] == nil {
		c.subs[childID] = make(map[chan struct{}]struct{})
	}
	c.subs[childID][ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[childID], ch)
			if len(c.subs[childID]) == 0 {
				delete(c.subs, childID)
			}
			c.mu.Unlock()
		})
	}
}

func (c *changes) publish(childID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ch := range c.subs[childID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (c *changes) count(childID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[childID])
}
