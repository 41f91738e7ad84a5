package local

import (
	"errors"
)

var (
	// ErrQuotaExceeded - локальное хранилище заполнено
	ErrQuotaExceeded = errors.New("local storage quota exceeded")
	// ErrUnavailable - хранилище закрыто или не открылось
	ErrUnavailable = errors.New("local storage unavailable")
)

// Backend - синхронное строковое key/value хранилище устройства.
// Ключи приходят уже с префиксом, значения уже зашифрованы.
type Backend interface {
	Get(key string) (value string, found bool, err error)
	Set(key, value string) error
	Remove(key string) error
	// Keys возвращает все ключи, начинающиеся с prefix.
	Keys(prefix string) ([]string, error)
}

// entrySize - сколько места занимает запись при подсчете квоты
func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
