package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// HistoryUpdatedName - имя сигнала об изменении истории
const HistoryUpdatedName = "history-updated"

// HistoryUpdated публикуется после каждого изменения списка истории
type HistoryUpdated struct {
	Key string `json:"key"`
}

// Bus - синхронная in-process шина. Подписчики вызываются в горутине Publish,
// в порядке подписки не гарантируется.
type Bus[E any] struct {
	mu       sync.RWMutex
	handlers map[string]func(E)
	log      *slog.Logger
}

func NewBus[E any](log *slog.Logger) *Bus[E] {
	return &Bus[E]{
		handlers: make(map[string]func(E)),
		log:      log.With(slog.String("component", "events")),
	}
}

// Subscribe регистрирует обработчик и возвращает функцию отписки
func (b *Bus[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	id := uuid.New().String()

	b.mu.Lock()
	b.handlers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish вызывает всех подписчиков. Паника обработчика логируется и не мешает остальным.
func (b *Bus[E]) Publish(event E) {
	b.mu.RLock()
	targets := make([]func(E), 0, len(b.handlers))
	for _, fn := range b.handlers {
		targets = append(targets, fn)
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		b.call(fn, event)
	}
}

func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *Bus[E]) call(fn func(E), event E) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("паника в обработчике события", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(event)
}
