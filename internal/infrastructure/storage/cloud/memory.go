package cloud

import (
	"fmt"
	"sync"
	"time"
)

// Op - операция моста, для подсчета вызовов и внедрения ошибок
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpRemove Op = "remove"
)

// MemoryBridge - облако в памяти с лимитами платформы. Callback всегда вызывается асинхронно.
type MemoryBridge struct {
	mu       sync.Mutex
	data     map[string]string
	user     Identity
	ready    bool
	maxKeys  int
	maxValue int
	latency  time.Duration
	fail     map[Op]error
	calls    map[Op]int
}

type MemoryOption func(*MemoryBridge)

// WithLimits задает лимиты облака: число ключей и размер значения (0 - без лимита)
func WithLimits(maxKeys, maxValue int) MemoryOption {
	return func(b *MemoryBridge) {
		b.maxKeys = maxKeys
		b.maxValue = maxValue
	}
}

// WithLatency задерживает каждый ответ
func WithLatency(d time.Duration) MemoryOption {
	return func(b *MemoryBridge) {
		b.latency = d
	}
}

func NewMemoryBridge(user Identity, opts ...MemoryOption) *MemoryBridge {
	b := &MemoryBridge{
		data:  make(map[string]string),
		user:  user,
		ready: true,
		fail:  make(map[Op]error),
		calls: make(map[Op]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBridge) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *MemoryBridge) SetReady(ready bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = ready
}

func (b *MemoryBridge) User() Identity {
	return b.user
}

// Fail заставляет все вызовы op завершаться с err. nil снимает ошибку.
func (b *MemoryBridge) Fail(op Op, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.fail, op)
		return
	}
	b.fail[op] = err
}

func (b *MemoryBridge) Calls(op Op) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Raw - значение как оно лежит в облаке (с префиксом ключа и зашифрованное)
func (b *MemoryBridge) Raw(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok
}

func (b *MemoryBridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *MemoryBridge) GetItem(key string, cb func(err error, value string)) {
	b.deliver(func() {
		b.mu.Lock()
		b.calls[OpGet]++
		err := b.fail[OpGet]
		value := b.data[key]
		b.mu.Unlock()

		if err != nil {
			cb(err, "")
			return
		}
		cb(nil, value)
	})
}

func (b *MemoryBridge) SetItem(key, value string, cb func(err error, stored bool)) {
	b.deliver(func() {
		b.mu.Lock()
		b.calls[OpSet]++
		err := b.fail[OpSet]
		if err == nil {
			err = b.put(key, value)
		}
		b.mu.Unlock()

		cb(err, err == nil)
	})
}

func (b *MemoryBridge) RemoveItem(key string, cb func(err error, removed bool)) {
	b.deliver(func() {
		b.mu.Lock()
		b.calls[OpRemove]++
		err := b.fail[OpRemove]
		if err == nil {
			delete(b.data, key)
		}
		b.mu.Unlock()

		cb(err, err == nil)
	})
}

// put вызывается под b.mu
func (b *MemoryBridge) put(key, value string) error {
	if b.maxValue > 0 && len(value) > b.maxValue {
		return fmt.Errorf("VALUE_INVALID: %w", ErrValueTooLarge)
	}
	if _, exists := b.data[key]; !exists && b.maxKeys > 0 && len(b.data) >= b.maxKeys {
		return fmt.Errorf("KEYS_TOO_MANY: %w", ErrTooManyKeys)
	}
	b.data[key] = value
	return nil
}

func (b *MemoryBridge) deliver(fn func()) {
	go func() {
		if b.latency > 0 {
			time.Sleep(b.latency)
		}
		fn()
	}()
}
