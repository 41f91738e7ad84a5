package schema

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/exp/slog"

	"bodytweaker/internal/domain/storage"
	"bodytweaker/internal/utils/logger"
)

// CurrentVersion - версия схемы данных, которую ожидает приложение
const CurrentVersion = 1

// Store - часть фасада хранилища, нужная миграциям
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Runner поднимает версию схемы данных при старте. Только вперед, повторный запуск ничего не меняет.
type Runner struct {
	store Store
	log   *slog.Logger
}

func NewRunner(store Store, log *slog.Logger) *Runner {
	return &Runner{
		store: store,
		log:   log.With(slog.String("component", "schema")),
	}
}

// Run выполняет миграции и возвращает версию схемы после запуска.
// Ошибки только логируются: старт приложения важнее миграции.
func (r *Runner) Run(ctx context.Context) int {
	version, ok := r.storedVersion(ctx)
	if ok && version >= CurrentVersion {
		return version
	}

	if !ok || version == 0 {
		r.backfillAcceptedTerms(ctx)
	}

	if err := r.store.Set(ctx, storage.KeySchemaVersion, strconv.Itoa(CurrentVersion)); err != nil {
		r.log.Error("не удалось записать версию схемы", logger.Err(err))
		if ok {
			return version
		}
		return 0
	}

	r.log.Info("схема данных обновлена", slog.Int("from", version), slog.Int("to", CurrentVersion))
	return CurrentVersion
}

func (r *Runner) storedVersion(ctx context.Context) (int, bool) {
	raw, found, err := r.store.Get(ctx, storage.KeySchemaVersion)
	if err != nil || !found {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		r.log.Warn("версия схемы не читается, считаем 0", slog.String("raw", raw))
		return 0, false
	}
	return v, true
}

// backfillAcceptedTerms: старые версии хранили только legal_acceptance_v1,
// флаг has_accepted_terms появился позже
func (r *Runner) backfillAcceptedTerms(ctx context.Context) {
	raw, found, err := r.store.Get(ctx, storage.KeyLegalAcceptance)
	if err != nil || !found || !truthyJSON(raw) {
		return
	}

	accepted, found, err := r.store.Get(ctx, storage.KeyHasAcceptedTerms)
	if err != nil {
		r.log.Warn("не удалось прочитать флаг согласия", logger.Err(err))
		return
	}
	if found && accepted != "" {
		return
	}

	if err := r.store.Set(ctx, storage.KeyHasAcceptedTerms, "true"); err != nil {
		r.log.Error("не удалось восстановить флаг согласия", logger.Err(err))
		return
	}
	r.log.Info("флаг согласия восстановлен из legal_acceptance_v1")
}

func truthyJSON(raw string) bool {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
