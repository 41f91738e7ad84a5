package cloud

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrUnavailable   = errors.New("cloud storage unavailable")
	ErrValueTooLarge = errors.New("cloud value too large")
	ErrRateLimited   = errors.New("cloud storage rate limited")
	ErrTimeout       = errors.New("cloud call timed out")
	ErrTooManyKeys   = errors.New("cloud storage key limit reached")
	ErrFailed        = errors.New("cloud call failed")
	ErrInvalidKey    = errors.New("invalid cloud key")
)

// Identity - пользователь, от имени которого хост открыл приложение
type Identity struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// Bridge - облачное хранилище хоста с callback API.
// Каждый callback вызывается не больше одного раза, возможно из другой горутины.
type Bridge interface {
	Ready() bool
	User() Identity
	GetItem(key string, cb func(err error, value string))
	SetItem(key, value string, cb func(err error, stored bool))
	RemoveItem(key string, cb func(err error, removed bool))
}

const maxKeyLength = 128

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateKey проверяет ключ по правилам облака: 1-128 символов A-Z, a-z, 0-9, _ и -
func ValidateKey(key string) error {
	if key == "" || len(key) > maxKeyLength {
		return fmt.Errorf("%w: длина %d", ErrInvalidKey, len(key))
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// classify приводит ошибку моста к одной из ошибок пакета
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrUnavailable, ErrValueTooLarge, ErrRateLimited, ErrTimeout, ErrTooManyKeys, ErrFailed, ErrInvalidKey} {
		if errors.Is(err, known) {
			return err
		}
	}

	msg := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(msg, "VALUE_INVALID"), strings.Contains(msg, "TOO LARGE"),
		strings.Contains(msg, "TOO_LARGE"), strings.Contains(msg, "EXCEEDS MAXIMUM"):
		return fmt.Errorf("%w: %v", ErrValueTooLarge, err)
	case strings.Contains(msg, "FLOOD"), strings.Contains(msg, "TOO_MANY_REQUESTS"),
		strings.Contains(msg, "RATE LIMIT"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(msg, "KEYS_TOO_MANY"), strings.Contains(msg, "TOO MANY KEYS"):
		return fmt.Errorf("%w: %v", ErrTooManyKeys, err)
	case strings.Contains(msg, "KEY_INVALID"):
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	default:
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}
}
