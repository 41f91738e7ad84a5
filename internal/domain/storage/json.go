package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/exp/slog"

	"bodytweaker/internal/utils/logger"
)

// GetJSON читает и разбирает JSON. Отсутствующее или битое значение дает fallback;
// ошибка возвращается только для неверного ключа.
func GetJSON[T any](ctx context.Context, s *Service, key string, fallback T) (T, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil {
		return fallback, err
	}
	if !found || raw == "" {
		return fallback, nil
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.log.Warn("ошибка разбора JSON", slog.String("key", key), logger.Err(err))
		return fallback, nil
	}
	return v, nil
}

// SetJSON сериализует значение и записывает его через Set
func SetJSON[T any](ctx context.Context, s *Service, key string, value T) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации %q: %w", key, err)
	}
	return s.Set(ctx, key, string(b))
}
