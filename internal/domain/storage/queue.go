package storage

import (
	"context"
	"errors"
	"time"

	"golang.org/x/exp/slog"

	"bodytweaker/internal/infrastructure/storage/cloud"
	"bodytweaker/internal/utils/logger"
)

// QueueEntry - облачная запись, ожидающая повтора. Deleted - отложенное удаление.
// Сама запись живет в памяти процесса, локально сохраняется только ключ.
type QueueEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	seq uint64
}

// FlushCloudQueue повторяет отложенные записи в порядке постановки.
// true - очередь пуста. Параллельные вызовы ждут один и тот же прогон.
func (s *Service) FlushCloudQueue(ctx context.Context) bool {
	v, _, _ := s.flight.Do("flush", func() (any, error) {
		return s.flush(ctx), nil
	})
	return v.(bool)
}

// Pending - число отложенных записей
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// QueueSnapshot - копия очереди для диагностики
func (s *Service) QueueSnapshot() []QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]QueueEntry, len(s.queue))
	copy(out, s.queue)
	return out
}

func (s *Service) flush(ctx context.Context) bool {
	if s.cloud == nil {
		return true
	}

	entries := s.QueueSnapshot()
	if len(entries) == 0 {
		return true
	}
	if !s.cloud.Available() {
		return false
	}

	sent := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		var err error
		if entry.Deleted {
			err = s.cloud.Remove(ctx, entry.Key)
		} else {
			err = s.cloud.Set(ctx, entry.Key, entry.Value)
		}

		switch {
		case err == nil:
			s.ack(entry.Key, entry.seq)
			sent++
		case !retryable(err):
			s.log.Error("отложенная запись отброшена", slog.String("key", entry.Key), logger.Err(err))
			s.ack(entry.Key, entry.seq)
		case errors.Is(err, cloud.ErrUnavailable):
			// дальше пробовать бессмысленно
			s.log.Warn("облако пропало во время отправки очереди", logger.Err(err))
			return s.Pending() == 0
		default:
			s.log.Warn("отложенная запись не отправлена", slog.String("key", entry.Key), logger.Err(err))
		}
	}

	left := s.Pending()
	s.log.Info("очередь облака отправлена", slog.Int("sent", sent), slog.Int("left", left))
	return left == 0
}

// enqueue ставит запись в очередь, заменяя предыдущую по тому же ключу.
// Запись, которую уже обогнала более новая, не ставится.
func (s *Service) enqueue(entry QueueEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.seq < s.versions[entry.Key] {
		return false
	}

	s.removeLocked(entry.Key)
	s.queue = append(s.queue, entry)
	s.markLocked(entry.Key)
	return true
}

// ack снимает с очереди запись по ключу, если она не новее подтвержденной
func (s *Service) ack(key string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.queue {
		if e.Key == key {
			if e.seq <= seq {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.unmarkLocked(key)
			}
			return
		}
	}
}

func (s *Service) pendingLocked(key string) bool {
	for _, e := range s.queue {
		if e.Key == key {
			return true
		}
	}
	return false
}

func (s *Service) removeLocked(key string) {
	for i, e := range s.queue {
		if e.Key == key {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}
