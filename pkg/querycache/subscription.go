package querycache

import "sync"

// Subscription is a live interest in one key. While at least one subscription
// is open, invalidating the key triggers an immediate refetch. Updates always
// carries the latest state; intermediate states may be skipped by slow readers.
type Subscription struct {
	c    *Cache
	key  Key
	ch   chan State
	once sync.Once
}

// Subscribe registers interest in key and starts a fetch unless the cached
// data is fresh. The current state is delivered on Updates right away.
func (c *Cache) Subscribe(key Key, fetch Fetcher) *Subscription {
	s := &Subscription{c: c, key: key, ch: make(chan State, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(s.ch)
		return s
	}
	e := c.entryLocked(key)
	e.fetcher = fetch
	e.subs[s] = struct{}{}
	needFetch := !c.freshLocked(e) && !e.fetching
	deliver(s.ch, c.stateLocked(key, e))
	c.mu.Unlock()

	if needFetch {
		c.refresh(key)
	}
	return s
}

// Updates delivers state changes for the key. It is closed by Close.
func (s *Subscription) Updates() <-chan State { return s.ch }

func (s *Subscription) Key() Key { return s.key }

// Close drops the subscription. A fetch still in flight completes and is
// cached, but nothing is delivered to this subscription any more.
func (s *Subscription) Close() {
	s.once.Do(func() {
		c := s.c
		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[s.key]
		if !ok {
			return
		}
		if _, ok := e.subs[s]; !ok {
			// already closed by Cache.Close
			return
		}
		delete(e.subs, s)
		e.lastUsed = c.now()
		close(s.ch)
	})
}

// notifyLocked pushes the entry state to every subscriber. c.mu must be held.
func (c *Cache) notifyLocked(key Key, e *entry) {
	if len(e.subs) == 0 {
		return
	}
	st := c.stateLocked(key, e)
	for s := range e.subs {
		deliver(s.ch, st)
	}
}

// deliver replaces any undelivered state in ch with st without blocking.
func deliver(ch chan State, st State) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- st:
	default:
	}
}
