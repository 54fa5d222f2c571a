// Package querycache is a keyed read cache with explicit invalidation.
//
// Every key maps to one entry holding its status (idle, loading, ready,
// error), the last fetched data, and the number of live subscribers. At most
// one fetch per key is in flight at a time; concurrent readers attach to it.
// Writers never touch cached data: they call Invalidate after a confirmed
// write, which marks the entry stale and refetches it if anyone is subscribed.
//
// Writes made elsewhere (another process, another replica) are picked up once
// ready data is older than the stale time. Entries nobody has used for the
// idle TTL are dropped, unless they have subscribers or a fetch in flight.
package querycache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by Fetch once the cache has been closed.
var ErrClosed = errors.New("querycache: closed")

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Key identifies a cached collection: an entity kind, optionally scoped to a user.
type Key struct {
	Kind   string
	UserID string
}

func (k Key) String() string {
	if k.UserID == "" {
		return k.Kind
	}
	return k.Kind + ":" + k.UserID
}

// Fetcher loads the data for one key.
type Fetcher func(ctx context.Context) (any, error)

// State is a point-in-time view of an entry. Data is shared between all
// readers of the key and must not be modified.
type State struct {
	Key         Key
	Status      Status
	Data        any
	Err         error
	Stale       bool
	Fetching    bool
	Subscribers int
	UpdatedAt   time.Time
}

type entry struct {
	status    Status
	data      any
	err       error
	stale     bool
	fetching  bool
	gen       uint64
	fetcher   Fetcher
	subs      map[*Subscription]struct{}
	updatedAt time.Time
	lastUsed  time.Time
}

type Option func(*Cache)

// WithMetrics records fetch and invalidation counters.
func WithMetrics(m *Metrics) Option { return func(c *Cache) { c.metrics = m } }

// WithStaleTime makes ready data older than d count as stale, so the next read
// refetches it. Zero keeps ready data fresh until it is invalidated.
func WithStaleTime(d time.Duration) Option { return func(c *Cache) { c.staleTime = d } }

// WithIdleTTL drops entries that have had no reader, subscriber or fetch for d.
// A background sweep runs every d/2 until Close. Zero keeps entries forever.
func WithIdleTTL(d time.Duration) Option { return func(c *Cache) { c.idleTTL = d } }

// WithClock replaces time.Now for staleness and idle checks.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	flights singleflight.Group
	metrics *Metrics
	// gen is bumped by every invalidation; new entries start from it so a
	// dropped and recreated entry never goes back in generation
	gen     uint64

	staleTime time.Duration
	idleTTL   time.Duration
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

func New(opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{entries: make(map[Key]*entry), ctx: ctx, cancel: cancel, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if c.idleTTL > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}
	return c
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()
	interval := c.idleTTL / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			c.Sweep()
		}
	}
}

// Sweep drops idle entries now and returns how many were removed.
func (c *Cache) Sweep() int {
	if c.idleTTL <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if len(e.subs) > 0 || e.fetching || now.Sub(e.lastUsed) < c.idleTTL {
			continue
		}
		delete(c.entries, k)
		n++
	}
	if n > 0 {
		log.WithField("entries", n).Debug("query cache swept")
	}
	return n
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close cancels in-flight fetches, waits for them and closes every subscription.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		for s := range e.subs {
			delete(e.subs, s)
			close(s.ch)
		}
	}
}

// entryLocked returns the entry for key, creating an idle one, and marks it
// used. c.mu must be held.
func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{status: StatusIdle, gen: c.gen, subs: make(map[*Subscription]struct{})}
		c.entries[key] = e
	}
	e.lastUsed = c.now()
	return e
}

// agedLocked reports whether ready data has outlived the stale time.
func (c *Cache) agedLocked(e *entry) bool {
	return c.staleTime > 0 && e.status == StatusReady && c.now().Sub(e.updatedAt) >= c.staleTime
}

func (c *Cache) freshLocked(e *entry) bool {
	return e.status == StatusReady && !e.stale && !c.agedLocked(e)
}

func (c *Cache) stateLocked(key Key, e *entry) State {
	return State{
		Key:         key,
		Status:      e.status,
		Data:        e.data,
		Err:         e.err,
		Stale:       e.stale || c.agedLocked(e),
		Fetching:    e.fetching,
		Subscribers: len(e.subs),
		UpdatedAt:   e.updatedAt,
	}
}

// Snapshot returns the current state of key without fetching.
func (c *Cache) Snapshot(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State{Key: key, Status: StatusIdle}
	}
	return c.stateLocked(key, e)
}

// Fetch returns fresh cached data for key, or waits for the single in-flight
// fetch of key (starting one if needed). A cancelled ctx stops the wait only;
// the fetch itself keeps running and its result is still cached.
func (c *Cache) Fetch(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entryLocked(key)
	e.fetcher = fetch
	if c.freshLocked(e) {
		data := e.data
		c.mu.Unlock()
		c.metrics.hit(key)
		return data, nil
	}
	want := e.gen
	c.mu.Unlock()

	for {
		ch := c.flights.DoChan(key.String(), func() (any, error) { return c.run(key) })
		select {
		case r := <-ch:
			if r.Err != nil {
				return nil, r.Err
			}
			if r.Shared {
				c.metrics.shared(key)
			}
			res := r.Val.(flightResult)
			if res.gen < want {
				// joined a flight that finished before our invalidation landed
				continue
			}
			return res.data, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type flightResult struct {
	data any
	gen  uint64
}

// Prefetch returns the current state of key without waiting, and starts a
// background fetch unless the data is fresh or a fetch is already running.
func (c *Cache) Prefetch(key Key, fetch Fetcher) State {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{Key: key, Status: StatusIdle}
	}
	e := c.entryLocked(key)
	e.fetcher = fetch
	start := !c.freshLocked(e) && !e.fetching
	st := c.stateLocked(key, e)
	c.mu.Unlock()

	if start {
		c.refresh(key)
		st.Fetching = true
	}
	return st
}

// refresh starts a background fetch of key, joining one already in flight.
func (c *Cache) refresh(key Key) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	ch := c.flights.DoChan(key.String(), func() (any, error) { return c.run(key) })
	go func() {
		defer c.wg.Done()
		<-ch
	}()
}

// run performs the fetch for key. It loops while the key is invalidated
// mid-flight, so a waiter that arrived after a write never gets pre-write data.
func (c *Cache) run(key Key) (flightResult, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return flightResult{}, ErrClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	for {
		c.mu.Lock()
		e := c.entryLocked(key)
		gen, fetch := e.gen, e.fetcher
		if fetch == nil {
			c.mu.Unlock()
			return flightResult{}, errors.New("querycache: no fetcher registered for " + key.String())
		}
		e.fetching = true
		if e.status != StatusReady {
			e.status = StatusLoading
		}
		c.notifyLocked(key, e)
		c.mu.Unlock()

		c.metrics.fetch(key)
		data, err := fetch(c.ctx)

		c.mu.Lock()
		if err == nil && e.gen != gen && c.ctx.Err() == nil {
			c.mu.Unlock()
			continue
		}
		e.fetching = false
		e.updatedAt = c.now()
		e.lastUsed = e.updatedAt
		if err != nil {
			e.status = StatusError
			e.err = err
			c.metrics.fetchError(key)
			log.WithError(err).WithField("key", key.String()).Warn("query fetch failed")
		} else {
			e.status = StatusReady
			e.data = data
			e.err = nil
			e.stale = e.gen != gen
		}
		c.notifyLocked(key, e)
		c.mu.Unlock()
		return flightResult{data: data, gen: gen}, err
	}
}

// Invalidate marks key stale and refetches it when it has subscribers.
// Unsubscribed entries are refetched lazily by the next Fetch.
func (c *Cache) Invalidate(key Key) {
	c.metrics.invalidate(key)
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.stale = true
	c.gen++
	e.gen = c.gen
	refetch := len(e.subs) > 0 && e.fetcher != nil
	c.notifyLocked(key, e)
	c.mu.Unlock()

	log.WithField("key", key.String()).WithField("refetch", refetch).Debug("query invalidated")
	if refetch {
		c.refresh(key)
	}
}

// InvalidateUser invalidates every key scoped to userID.
func (c *Cache) InvalidateUser(userID string) {
	if userID == "" {
		return
	}
	c.mu.Lock()
	var keys []Key
	for k := range c.entries {
		if k.UserID == userID {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	for _, k := range keys {
		c.Invalidate(k)
	}
}
