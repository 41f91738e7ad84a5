package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"

	"bodytweaker/internal/app/client/config"
	"bodytweaker/internal/app/client/crypto"
	"bodytweaker/internal/domain/backup"
	"bodytweaker/internal/domain/events"
	"bodytweaker/internal/domain/history"
	"bodytweaker/internal/domain/schema"
	"bodytweaker/internal/domain/storage"
	"bodytweaker/internal/infrastructure/storage/cloud"
	"bodytweaker/internal/infrastructure/storage/local"
	"bodytweaker/internal/utils/logger"
)

const finalFlushTimeout = 5 * time.Second

// App собирает хранилище клиента: локальный SQLite, облако (если включено),
// фасад, историю, миграции схемы и бэкап.
type App struct {
	config *config.Config
	log    *slog.Logger

	Local   *local.Adapter
	Storage *storage.Service
	History *history.Manager[history.Record]
	Events  *events.Bus[events.HistoryUpdated]
	Schema  *schema.Runner
	Backup  *backup.Service

	cloud   *cloud.Adapter
	bridge  cloud.Bridge
	closers []io.Closer

	wg     gosync.WaitGroup
	cancel context.CancelFunc
	mu     gosync.Mutex
	closed bool
}

// Status - состояние синхронизации для вывода в CLI
type Status struct {
	LocalAvailable bool                 `json:"local_available"`
	CloudEnabled   bool                 `json:"cloud_enabled"`
	CloudAvailable bool                 `json:"cloud_available"`
	Pending        int                  `json:"pending"`
	Queue          []storage.QueueEntry `json:"queue"`
	SchemaVersion  string               `json:"schema_version,omitempty"`
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	codec, err := crypto.NewCodec(cfg.Data.Key, cfg.Data.KDF)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации шифрования: %w", err)
	}

	app := &App{config: cfg, log: log}

	// Локальное хранилище: SQLite, при ошибке - память
	var backend local.Backend
	sqlite, err := openSQLite(cfg.Data.Path, cfg.Data.LocalQuota)
	if err != nil {
		log.Warn("Не удалось инициализировать SQLite, используем память", logger.Err(err))
		backend = local.NewMemoryBackend(cfg.Data.LocalQuota)
	} else {
		backend = sqlite
		app.closers = append(app.closers, sqlite)
	}
	app.Local = local.NewAdapter(backend, codec, log)

	var cloudStore storage.Cloud
	if cfg.Cloud.Enabled {
		bridge, err := app.openBridge(ctx)
		if err != nil {
			log.Warn("Облако недоступно, работаем локально", logger.Err(err))
		} else {
			app.bridge = bridge
			app.cloud = cloud.NewAdapter(bridge, codec, log,
				cloud.WithTimeout(cfg.Cloud.Timeout),
				cloud.WithMaxValueBytes(cfg.Cloud.MaxValueBytes),
			)
			cloudStore = app.cloud
		}
	}

	app.Storage = storage.New(app.Local, cloudStore, log)
	app.Events = events.NewBus[events.HistoryUpdated](log)
	app.History = history.NewRecordManager(app.Storage, app.Events, history.Config{
		CeilingBytes: cfg.Cloud.MaxValueBytes,
		SafetyRatio:  cfg.History.SafetyRatio,
		MaxItems:     cfg.History.MaxItems,
		ExtraCleanup: history.DefaultExtraCleanup,
	}, log)
	app.Schema = schema.NewRunner(app.Storage, log)
	app.Backup = backup.New(app.Storage, app.History, log)

	return app, nil
}

func openSQLite(path string, quota int64) (*local.SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("создание директории данных: %w", err)
	}
	return local.NewSQLiteBackend(path, quota)
}

func (a *App) openBridge(ctx context.Context) (cloud.Bridge, error) {
	user := cloud.Identity{ID: a.config.Cloud.UserID}

	switch a.config.Cloud.Backend {
	case config.CloudMemory:
		return cloud.NewMemoryBridge(user, cloud.WithLimits(a.config.Cloud.MaxKeys, a.config.Cloud.MaxValueBytes)), nil
	default:
		bridge, err := cloud.NewNATSBridge(ctx, cloud.NATSConfig{
			URL:           a.config.Cloud.NATSURL,
			Bucket:        a.config.Cloud.Bucket,
			MaxValueBytes: a.config.Cloud.MaxValueBytes,
			CallTimeout:   a.config.Cloud.Timeout,
		}, user, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bridge)
		return bridge, nil
	}
}

// Start прогоняет миграции схемы и запускает фоновый сброс очереди облака.
func (a *App) Start(ctx context.Context) {
	a.Schema.Run(ctx)

	if a.cloud == nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.flushLoop(ctx, a.config.Flush)
	}()
}

// flushLoop сбрасывает очередь по тикеру, пока в ней что-то есть.
func (a *App) flushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.Storage.Pending() == 0 {
				continue
			}
			if a.Storage.FlushCloudQueue(ctx) {
				a.log.Debug("cloud queue flushed")
			}
		}
	}
}

// Close останавливает фон, последний раз сбрасывает очередь и закрывает ресурсы.
// Записи, которые так и не ушли в облако, теряются вместе с процессом.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	if a.cloud != nil && a.Storage.Pending() > 0 {
		ctx, cancelFlush := context.WithTimeout(context.Background(), finalFlushTimeout)
		if !a.Storage.FlushCloudQueue(ctx) {
			a.log.Warn("очередь облака не сброшена при выходе", slog.Int("pending", a.Storage.Pending()))
		}
		cancelFlush()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) Status() Status {
	version, _ := a.Storage.GetLocal(storage.KeySchemaVersion)
	return Status{
		LocalAvailable: a.Local.Available(),
		CloudEnabled:   a.config.Cloud.Enabled,
		CloudAvailable: a.Storage.CloudAvailable(),
		Pending:        a.Storage.Pending(),
		Queue:          a.Storage.QueueSnapshot(),
		SchemaVersion:  version,
	}
}

type ctxKey struct{}

// WithApp кладет приложение в контекст команды.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, ctxKey{}, app)
}

// FromContext достает приложение из контекста.
func FromContext(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(ctxKey{}).(*App)
	if !ok || app == nil {
		return nil, errors.New("приложение не инициализировано")
	}
	return app, nil
}
