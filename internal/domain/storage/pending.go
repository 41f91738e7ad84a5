package storage

import (
	"context"
	"encoding/json"
	"sort"

	"golang.org/x/exp/slog"

	"bodytweaker/internal/infrastructure/storage/cloud"
	"bodytweaker/internal/utils/logger"
)

// pendingKey - локальный ключ со списком ключей, облачные записи которых еще не дошли.
// Двоеточие не проходит ValidateKey, поэтому с ключами приложения он не пересекается.
const pendingKey = "__cloud:pending"

// restoreQueue поднимает очередь, оставшуюся от прошлого процесса. Для каждого
// отмеченного ключа в облако уйдет текущее локальное значение, а если его нет - удаление.
func (s *Service) restoreQueue() {
	raw, ok := s.local.Get(pendingKey)
	if !ok {
		return
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		s.log.Warn("список отложенных ключей поврежден, очередь не восстановлена", logger.Err(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if ValidateKey(key) != nil || s.pendingLocked(key) {
			continue
		}
		value, found := s.local.Get(key)
		s.queue = append(s.queue, QueueEntry{
			Key:       key,
			Value:     value,
			Deleted:   !found,
			Timestamp: s.now(),
			seq:       s.bumpLocked(key),
		})
		s.dirty[key] = struct{}{}
	}

	if len(s.queue) > 0 {
		s.log.Info("восстановлена очередь облака", slog.Int("pending", len(s.queue)))
	}
}

// GetRemote читает только облако и не трогает локальную копию
func (s *Service) GetRemote(ctx context.Context, key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}
	if !s.cloudAvailable() {
		return "", false, cloud.ErrUnavailable
	}
	return s.cloud.Get(ctx, key)
}

func (s *Service) markLocked(key string) {
	if _, ok := s.dirty[key]; ok {
		return
	}
	s.dirty[key] = struct{}{}
	s.persistLocked()
}

func (s *Service) unmarkLocked(key string) {
	if _, ok := s.dirty[key]; !ok {
		return
	}
	delete(s.dirty, key)
	s.persistLocked()
}

func (s *Service) persistLocked() {
	var err error
	if len(s.dirty) == 0 {
		err = s.local.Remove(pendingKey)
	} else {
		keys := make([]string, 0, len(s.dirty))
		for k := range s.dirty {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b []byte
		if b, err = json.Marshal(keys); err == nil {
			err = s.local.Set(pendingKey, string(b))
		}
	}
	if err != nil {
		s.log.Warn("не удалось сохранить список отложенных ключей", logger.Err(err))
	}
}
