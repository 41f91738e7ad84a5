package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/singleflight"

	"bodytweaker/internal/infrastructure/storage/cloud"
	"bodytweaker/internal/infrastructure/storage/local"
	"bodytweaker/internal/utils/logger"
)

var (
	// ErrInvalidKey - ключ не подходит под правила хранилища. Ошибка программиста.
	ErrInvalidKey    = errors.New("invalid storage key")
	ErrQuotaExceeded = local.ErrQuotaExceeded
	ErrLocalWrite    = local.ErrWrite
	// ErrRemoteTooLarge - облако не принимает значение такого размера
	ErrRemoteTooLarge = cloud.ErrValueTooLarge
)

// Local - хранилище устройства, источник истины
type Local interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// Cloud - облако пользователя, запись в него по возможности
type Cloud interface {
	Available() bool
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	StoredLen(n int) int
}

// WriteResult - что случилось с облачной частью записи
type WriteResult struct {
	// Remote - ошибка облака, nil если запись дошла (или облака нет)
	Remote error
	// Queued - запись отложена до FlushCloudQueue
	Queued bool
}

// Service - единый фасад хранилища: локальная запись всегда, облако по возможности,
// отложенные облачные записи копятся в очереди.
type Service struct {
	local Local
	cloud Cloud
	log   *slog.Logger
	now   func() time.Time

	mu sync.Mutex
	// queue упорядочена по времени постановки, на ключ не больше одной записи
	queue []QueueEntry
	// versions - номер последней записи по ключу
	versions map[string]uint64
	seq      uint64
	// dirty - ключи из очереди, копия хранится локально под pendingKey
	dirty map[string]struct{}

	flight singleflight.Group
}

// New создает фасад. cloud может быть nil - тогда работаем только локально.
// Облачные записи, не отправленные прошлым процессом, снова ставятся в очередь.
func New(localStore Local, cloudStore Cloud, log *slog.Logger) *Service {
	s := &Service{
		local:    localStore,
		cloud:    cloudStore,
		log:      log.With(slog.String("component", "storage")),
		now:      time.Now,
		versions: make(map[string]uint64),
		dirty:    make(map[string]struct{}),
	}
	if cloudStore != nil {
		s.restoreQueue()
	}
	return s
}

// Get читает значение: облако первым, при ошибке или промахе - локальное.
// Пока по ключу есть отложенная запись, отдается локальное (более новое) значение.
func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}

	if !s.cloudAvailable() {
		v, ok := s.local.Get(key)
		return v, ok, nil
	}

	s.mu.Lock()
	pending := s.pendingLocked(key)
	version := s.versions[key]
	s.mu.Unlock()

	if pending {
		v, ok := s.local.Get(key)
		return v, ok, nil
	}

	remote, found, err := s.cloud.Get(ctx, key)
	if err != nil || !found {
		if err != nil {
			s.log.Debug("облако недоступно, читаем локально", slog.String("key", key), logger.Err(err))
		}
		v, ok := s.local.Get(key)
		return v, ok, nil
	}

	s.backfill(key, remote, version)
	return remote, true, nil
}

// GetLocal читает только локальное хранилище
func (s *Service) GetLocal(key string) (string, bool) {
	if ValidateKey(key) != nil {
		return "", false
	}
	return s.local.Get(key)
}

// Set записывает значение. Ошибка возвращается только от локального хранилища
// (ErrQuotaExceeded, ErrLocalWrite) или для неверного ключа.
func (s *Service) Set(ctx context.Context, key, value string) error {
	_, err := s.Write(ctx, key, value)
	return err
}

// Write - Set с подробностями об облачной части записи
func (s *Service) Write(ctx context.Context, key, value string) (WriteResult, error) {
	if err := ValidateKey(key); err != nil {
		return WriteResult{}, err
	}

	s.mu.Lock()
	seq := s.bumpLocked(key)
	localErr := s.local.Set(key, value)
	s.mu.Unlock()

	if s.cloud == nil {
		return WriteResult{}, localErr
	}

	entry := QueueEntry{Key: key, Value: value, Timestamp: s.now(), seq: seq}
	return s.pushRemote(ctx, entry), localErr
}

// Remove удаляет ключ из обоих хранилищ. Ошибка облака не мешает локальному удалению.
func (s *Service) Remove(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	seq := s.bumpLocked(key)
	localErr := s.local.Remove(key)
	s.mu.Unlock()

	if localErr != nil {
		s.log.Warn("ошибка локального удаления", slog.String("key", key), logger.Err(localErr))
	}

	if s.cloud != nil {
		entry := QueueEntry{Key: key, Deleted: true, Timestamp: s.now(), seq: seq}
		s.pushRemote(ctx, entry)
	}
	return localErr
}

// StoredLen - сколько займет значение длиной n в облаке
func (s *Service) StoredLen(n int) int {
	if s.cloud == nil {
		return n
	}
	return s.cloud.StoredLen(n)
}

// CloudAvailable - доступно ли облако прямо сейчас
func (s *Service) CloudAvailable() bool {
	return s.cloudAvailable()
}

func (s *Service) cloudAvailable() bool {
	return s.cloud != nil && s.cloud.Available()
}

// pushRemote отправляет запись в облако, при неудаче ставит ее в очередь
func (s *Service) pushRemote(ctx context.Context, entry QueueEntry) WriteResult {
	if !s.cloudAvailable() {
		queued := s.enqueue(entry)
		return WriteResult{Remote: cloud.ErrUnavailable, Queued: queued}
	}

	var err error
	if entry.Deleted {
		err = s.cloud.Remove(ctx, entry.Key)
	} else {
		err = s.cloud.Set(ctx, entry.Key, entry.Value)
	}

	if err == nil {
		s.ack(entry.Key, entry.seq)
		return WriteResult{}
	}

	if !retryable(err) {
		s.log.Error("облако отклонило запись",
			slog.String("key", entry.Key),
			logger.Err(err),
		)
		// старая отложенная запись по ключу тоже устарела
		s.ack(entry.Key, entry.seq)
		return WriteResult{Remote: err}
	}

	queued := s.enqueue(entry)
	s.log.Warn("запись в облако отложена",
		slog.String("key", entry.Key),
		slog.Bool("queued", queued),
		logger.Err(err),
	)
	return WriteResult{Remote: err, Queued: queued}
}

// backfill обновляет локальную копию значением из облака, если ключ
// не менялся локально с момента начала чтения
func (s *Service) backfill(key, remote string, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versions[key] != version || s.pendingLocked(key) {
		return
	}
	if current, ok := s.local.Get(key); ok && current == remote {
		return
	}
	if err := s.local.Set(key, remote); err != nil {
		s.log.Warn("не удалось обновить локальную копию", slog.String("key", key), logger.Err(err))
	}
}

func (s *Service) bumpLocked(key string) uint64 {
	s.seq++
	s.versions[key] = s.seq
	return s.seq
}

// retryable - ошибки, после которых запись имеет смысл повторить
func retryable(err error) bool {
	return !errors.Is(err, cloud.ErrValueTooLarge) && !errors.Is(err, cloud.ErrInvalidKey)
}

// ValidateKey проверяет логический ключ: вместе с префиксом он должен подходить облаку
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: пустой ключ", ErrInvalidKey)
	}
	if err := cloud.ValidateKey(cloud.DefaultPrefix + key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return nil
}
