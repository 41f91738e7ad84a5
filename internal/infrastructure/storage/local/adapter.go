package local

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slog"

	"bodytweaker/internal/utils/logger"
)

// DefaultPrefix отделяет ключи приложения от чужих данных в том же хранилище
const DefaultPrefix = "bt_app_"

const checkKey = "__storage_test__"

// ErrWrite - запись не удалась по причине, отличной от квоты
var ErrWrite = errors.New("local write failed")

// Sealer шифрует значения перед записью и открывает их при чтении
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Open(value string) string
}

// Adapter - пространство имен приложения поверх Backend с шифрованием значений
type Adapter struct {
	backend Backend
	codec   Sealer
	prefix  string
	log     *slog.Logger
}

type Option func(*Adapter)

func WithPrefix(prefix string) Option {
	return func(a *Adapter) {
		a.prefix = prefix
	}
}

func NewAdapter(backend Backend, codec Sealer, log *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		backend: backend,
		codec:   codec,
		prefix:  DefaultPrefix,
		log:     log.With(slog.String("component", "local")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Get возвращает расшифрованное значение. Ошибки бэкенда логируются и дают found == false.
func (a *Adapter) Get(key string) (string, bool) {
	raw, found, err := a.backend.Get(a.prefix + key)
	if err != nil {
		a.log.Warn("ошибка чтения", slog.String("key", key), logger.Err(err))
		return "", false
	}
	if !found {
		return "", false
	}
	return a.codec.Open(raw), true
}

// Set шифрует и записывает значение. Переполнение возвращается как ErrQuotaExceeded,
// всё остальное как ErrWrite.
func (a *Adapter) Set(key, value string) error {
	sealed, err := a.codec.Encrypt(value)
	if err != nil {
		a.log.Error("ошибка шифрования", slog.String("key", key), logger.Err(err))
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	if err := a.backend.Set(a.prefix+key, sealed); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			a.log.Error("локальное хранилище переполнено", slog.String("key", key))
			return ErrQuotaExceeded
		}
		a.log.Warn("ошибка записи", slog.String("key", key), logger.Err(err))
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func (a *Adapter) Remove(key string) error {
	if err := a.backend.Remove(a.prefix + key); err != nil {
		a.log.Warn("ошибка удаления", slog.String("key", key), logger.Err(err))
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Keys - логические ключи приложения (без префикса)
func (a *Adapter) Keys() ([]string, error) {
	raw, err := a.backend.Keys(a.prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, a.prefix))
	}
	return keys, nil
}

// Clear удаляет только ключи приложения и возвращает число удаленных
func (a *Adapter) Clear() (int, error) {
	keys, err := a.backend.Keys(a.prefix)
	if err != nil {
		a.log.Warn("ошибка очистки", logger.Err(err))
		return 0, err
	}

	removed := 0
	for _, k := range keys {
		if err := a.backend.Remove(k); err != nil {
			a.log.Warn("ошибка очистки", slog.String("key", k), logger.Err(err))
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Available проверяет хранилище пробной записью
func (a *Adapter) Available() bool {
	if err := a.backend.Set(checkKey, checkKey); err != nil {
		return false
	}
	return a.backend.Remove(checkKey) == nil
}
