// ABOUTME: Bounded time window of recently published message ids, keyed per topic
// ABOUTME: Lets the broker answer a retried publish with 409 instead of delivering twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// key scopes a message id to its topic; the same id on two topics is two
// different messages.
type key struct {
	topic string
	id    string
}

type entry struct {
	key    key
	seenAt time.Time
}

// Window remembers message ids for ttl, holding at most maxEntries. Entries
// sit in a list ordered by first sighting, so both expiry and capacity
// eviction pop from the front.
type Window struct {
	mu         sync.Mutex
	seen       map[key]*list.Element
	order      *list.List // oldest at front
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New starts a window with a background sweeper. Call Close to stop it.
func New(ttl time.Duration, maxEntries int) *Window {
	w := newWindow(ttl, maxEntries, time.Now)
	go w.sweepLoop(sweepInterval(ttl))
	return w
}

func newWindow(ttl time.Duration, maxEntries int, now func() time.Time) *Window {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Window{
		seen:       make(map[key]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		done:       make(chan struct{}),
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// Seen reports whether id was already published on topic inside the window,
// and records it if not. The check and the record are one atomic step so two
// concurrent retries cannot both pass.
func (w *Window) Seen(topic, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expireLocked(now)

	k := key{topic: topic, id: id}
	if _, ok := w.seen[k]; ok {
		return true
	}

	if w.order.Len() >= w.maxEntries {
		w.removeLocked(w.order.Front())
	}
	w.seen[k] = w.order.PushBack(&entry{key: k, seenAt: now})
	return false
}

// contains reports whether id is inside the window for topic without
// recording it.
func (w *Window) contains(topic, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	el, ok := w.seen[key{topic: topic, id: id}]
	if !ok {
		return false
	}
	e, _ := el.Value.(*entry)
	return w.now().Sub(e.seenAt) < w.ttl
}

// Forget drops id so a later publish with it is accepted again. The broker
// uses it when a publish fails after the id was recorded.
func (w *Window) Forget(topic, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.seen[key{topic: topic, id: id}]; ok {
		w.removeLocked(el)
	}
}

// size returns the number of ids currently held, expired or not.
func (w *Window) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}

// expireLocked pops entries older than ttl. Must be called with mu held.
func (w *Window) expireLocked(now time.Time) {
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		e, _ := el.Value.(*entry)
		if now.Sub(e.seenAt) < w.ttl {
			return
		}
		w.removeLocked(el)
	}
}

func (w *Window) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e, _ := w.order.Remove(el).(*entry)
	delete(w.seen, e.key)
}

func (w *Window) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			w.expireLocked(w.now())
			w.mu.Unlock()
		case <-w.done:
			return
		}
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (w *Window) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}
