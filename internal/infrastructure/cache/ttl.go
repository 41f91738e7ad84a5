package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[V any] struct {
	key     string
	value   V
	expires time.Time
	element *list.Element
}

// TTL потокобезопасный кэш с ограничением по времени жизни и размеру.
// При переполнении вытесняется самая старая запись.
type TTL[V any] struct {
	mu      sync.Mutex
	items   map[string]*entry[V]
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool

	interval time.Duration
}

type Option[V any] func(*TTL[V])

// WithClock подменяет источник времени (для тестов).
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *TTL[V]) { c.now = now }
}

// WithCleanup запускает фоновую очистку протухших записей с указанным интервалом.
func WithCleanup[V any](interval time.Duration) Option[V] {
	return func(c *TTL[V]) { c.interval = interval }
}

func NewTTL[V any](ttl time.Duration, maxSize int, opts ...Option[V]) *TTL[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &TTL[V]{
		items:   make(map[string]*entry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.interval > 0 {
		go c.cleanup(c.interval)
	}
	return c
}

// Get возвращает значение, если оно есть и не протухло.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expires) {
		c.removeLocked(e)
		return zero, false
	}
	return e.value, true
}

func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if e, ok := c.items[key]; ok {
		e.value = value
		e.expires = expires
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.items) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.removeLocked(front.Value.(*entry[V]))
		}
	}

	e := &entry[V]{key: key, value: value, expires: expires}
	e.element = c.order.PushBack(e)
	c.items[key] = e
}

func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// removeLocked вызывается под mu.
func (c *TTL[V]) removeLocked(e *entry[V]) {
	c.order.Remove(e.element)
	delete(c.items, e.key)
}

func (c *TTL[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purge()
		case <-c.done:
			return
		}
	}
}

// purge удаляет все протухшие записи.
func (c *TTL[V]) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, e := range c.items {
		if !now.Before(e.expires) {
			c.removeLocked(e)
		}
	}
}

// Close останавливает фоновую очистку. Повторный вызов безопасен.
func (c *TTL[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
