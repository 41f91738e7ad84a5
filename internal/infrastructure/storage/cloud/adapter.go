package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"bodytweaker/internal/utils/logger"
)

const (
	DefaultPrefix        = "bt_app_"
	DefaultTimeout       = 500 * time.Millisecond
	DefaultMaxValueBytes = 4096
)

// Sealer шифрует значения перед отправкой в облако
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Open(value string) string
	SealedLen(n int) int
}

// Adapter превращает callback API моста в блокирующие вызовы с таймаутом.
// Поздний ответ после таймаута игнорируется.
type Adapter struct {
	bridge   Bridge
	codec    Sealer
	prefix   string
	timeout  time.Duration
	maxValue int
	log      *slog.Logger
}

type Option func(*Adapter)

func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithMaxValueBytes(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxValue = n
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(a *Adapter) {
		a.prefix = prefix
	}
}

// NewAdapter создает адаптер. bridge может быть nil - тогда облако просто недоступно.
func NewAdapter(bridge Bridge, codec Sealer, log *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		bridge:   bridge,
		codec:    codec,
		prefix:   DefaultPrefix,
		timeout:  DefaultTimeout,
		maxValue: DefaultMaxValueBytes,
		log:      log.With(slog.String("component", "cloud")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Available() bool {
	return a.bridge != nil && a.bridge.Ready()
}

// MaxValueBytes - потолок размера одного значения в облаке (после шифрования)
func (a *Adapter) MaxValueBytes() int {
	return a.maxValue
}

// StoredLen - сколько байт займет в облаке значение длиной n
func (a *Adapter) StoredLen(n int) int {
	return a.codec.SealedLen(n)
}

// Get читает значение. Пустое значение облако отдает для отсутствующего ключа.
func (a *Adapter) Get(ctx context.Context, key string) (string, bool, error) {
	full, err := a.check(key)
	if err != nil {
		return "", false, err
	}

	value, err := await(ctx, a.timeout, func(done func(string, error)) {
		a.bridge.GetItem(full, func(err error, value string) {
			done(value, err)
		})
	})
	if err != nil {
		a.log.Warn("ошибка чтения из облака", slog.String("key", key), logger.Err(err))
		return "", false, err
	}
	if value == "" {
		return "", false, nil
	}
	return a.codec.Open(value), true, nil
}

func (a *Adapter) Set(ctx context.Context, key, value string) error {
	full, err := a.check(key)
	if err != nil {
		return err
	}

	sealed, err := a.codec.Encrypt(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}
	if len(sealed) > a.maxValue {
		return fmt.Errorf("%w: %d > %d байт", ErrValueTooLarge, len(sealed), a.maxValue)
	}

	stored, err := await(ctx, a.timeout, func(done func(bool, error)) {
		a.bridge.SetItem(full, sealed, func(err error, stored bool) {
			done(stored, err)
		})
	})
	if err == nil && !stored {
		err = fmt.Errorf("%w: значение не сохранено", ErrFailed)
	}
	if err != nil {
		a.log.Warn("ошибка записи в облако", slog.String("key", key), logger.Err(err))
		return err
	}
	return nil
}

func (a *Adapter) Remove(ctx context.Context, key string) error {
	full, err := a.check(key)
	if err != nil {
		return err
	}

	removed, err := await(ctx, a.timeout, func(done func(bool, error)) {
		a.bridge.RemoveItem(full, func(err error, removed bool) {
			done(removed, err)
		})
	})
	if err == nil && !removed {
		err = fmt.Errorf("%w: ключ не удален", ErrFailed)
	}
	if err != nil {
		a.log.Warn("ошибка удаления из облака", slog.String("key", key), logger.Err(err))
		return err
	}
	return nil
}

func (a *Adapter) check(key string) (string, error) {
	if !a.Available() {
		return "", ErrUnavailable
	}
	full := a.prefix + key
	if err := ValidateKey(full); err != nil {
		return "", err
	}
	return full, nil
}

type result[T any] struct {
	value T
	err   error
}

// await запускает вызов моста и ждет первый ответ не дольше timeout.
// Паника внутри моста превращается в ErrFailed.
func await[T any](ctx context.Context, timeout time.Duration, start func(done func(T, error))) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan result[T], 1)
	var once sync.Once
	done := func(v T, err error) {
		once.Do(func() {
			ch <- result[T]{value: v, err: classify(err)}
		})
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done(zero, fmt.Errorf("%w: panic: %v", ErrFailed, r))
			}
		}()
		start(done)
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}
