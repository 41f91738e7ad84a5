package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/exp/slog"

	"bodytweaker/internal/domain/history"
	"bodytweaker/internal/domain/storage"
	"bodytweaker/internal/utils/logger"
)

const (
	// Version - единственная поддерживаемая версия файла
	Version = 1
	// MaxFileBytes - предельный размер файла бэкапа
	MaxFileBytes = 5 << 20
)

var ErrInvalidBackup = errors.New("invalid backup file")

var themeModes = map[string]bool{"light": true, "dark": true, "auto": true}

// KV - строковые ключи фасада
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// History - история сессий
type History interface {
	Get(ctx context.Context, key string) ([]history.Record, error)
	SaveRaw(ctx context.Context, key string, records []json.RawMessage) error
	Remove(ctx context.Context, key string) error
}

// Document - файл резервной копии
type Document struct {
	Version int    `json:"version"`
	Date    string `json:"date"`
	Data    Data   `json:"data"`
}

// Data - сохраняемые ключи. Отсутствующие значения не попадают в файл.
type Data struct {
	HistoryFasting   []json.RawMessage `json:"history_fasting"`
	FastingStartTime *string           `json:"fasting_startTime,omitempty"`
	FastingScheme    *string           `json:"fasting_scheme,omitempty"`
	UserName         *string           `json:"user_name,omitempty"`
	HasAcceptedTerms json.RawMessage   `json:"has_accepted_terms,omitempty"`
	LegalAcceptance  json.RawMessage   `json:"legal_acceptance_v1,omitempty"`
	ThemeMode        *string           `json:"theme_mode,omitempty"`
	SchemaVersion    *string           `json:"schema_version,omitempty"`
}

// ImportResult - что было восстановлено
type ImportResult struct {
	HistoryRecords int      `json:"history_records"`
	HistoryDropped int      `json:"history_dropped"`
	Keys           []string `json:"keys"`
}

type Service struct {
	kv      KV
	history History
	log     *slog.Logger
	now     func() time.Time
}

func New(kv KV, hist History, log *slog.Logger) *Service {
	return &Service{
		kv:      kv,
		history: hist,
		log:     log.With(slog.String("component", "backup")),
		now:     time.Now,
	}
}

// Export собирает резервную копию и запоминает время экспорта
func (s *Service) Export(ctx context.Context) (Document, error) {
	records, err := s.history.Get(ctx, storage.KeyHistoryFasting)
	if err != nil {
		return Document{}, err
	}

	data := Data{HistoryFasting: make([]json.RawMessage, 0, len(records))}
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return Document{}, fmt.Errorf("ошибка сериализации записи %s: %w", r.ID, err)
		}
		data.HistoryFasting = append(data.HistoryFasting, b)
	}

	data.FastingStartTime = s.optional(ctx, storage.KeyFastingStartTime)
	data.FastingScheme = s.optional(ctx, storage.KeyFastingScheme)
	data.UserName = s.optional(ctx, storage.KeyUserName)
	data.ThemeMode = s.optional(ctx, storage.KeyThemeMode)
	data.SchemaVersion = s.optional(ctx, storage.KeySchemaVersion)

	if v := s.optional(ctx, storage.KeyHasAcceptedTerms); v != nil {
		data.HasAcceptedTerms, _ = json.Marshal(*v)
	}
	if v := s.optional(ctx, storage.KeyLegalAcceptance); v != nil && isObject(json.RawMessage(*v)) {
		data.LegalAcceptance = json.RawMessage(*v)
	}

	exportedAt := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.kv.Set(ctx, storage.KeyLastBackupExport, exportedAt); err != nil {
		s.log.Warn("не удалось запомнить время экспорта", logger.Err(err))
	}

	return Document{Version: Version, Date: exportedAt, Data: data}, nil
}

// Encode пишет документ в JSON с отступами
func Encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Parse читает и целиком проверяет файл. Любая ошибка формы - ErrInvalidBackup.
// Записи истории неправильной формы отбрасываются, а не отклоняют файл.
func Parse(r io.Reader) (Document, int, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxFileBytes+1))
	if err != nil {
		return Document{}, 0, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if len(body) > MaxFileBytes {
		return Document{}, 0, fmt.Errorf("%w: файл больше %d байт", ErrInvalidBackup, MaxFileBytes)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return Document{}, 0, fmt.Errorf("%w: ожидается JSON-объект", ErrInvalidBackup)
	}

	var version float64
	if err := json.Unmarshal(top["version"], &version); err != nil || version != Version {
		return Document{}, 0, fmt.Errorf("%w: неподдерживаемая версия", ErrInvalidBackup)
	}

	rawData, ok := top["data"]
	if !ok || !isObject(rawData) {
		return Document{}, 0, fmt.Errorf("%w: нет блока data", ErrInvalidBackup)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rawData, &fields); err != nil {
		return Document{}, 0, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	doc := Document{Version: Version}
	if rawDate, ok := top["date"]; ok {
		_ = json.Unmarshal(rawDate, &doc.Date)
	} else if rawDate, ok := top["exportedAt"]; ok {
		_ = json.Unmarshal(rawDate, &doc.Date)
	}

	dropped := 0
	if raw, ok := present(fields, "history_fasting"); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Document{}, 0, fmt.Errorf("%w: history_fasting должен быть массивом", ErrInvalidBackup)
		}
		doc.Data.HistoryFasting = make([]json.RawMessage, 0, len(items))
		for _, item := range items {
			if history.ValidRecord(item) {
				doc.Data.HistoryFasting = append(doc.Data.HistoryFasting, item)
			} else {
				dropped++
			}
		}
	}

	stringFields := []struct {
		name string
		dst  **string
	}{
		{"fasting_startTime", &doc.Data.FastingStartTime},
		{"fasting_scheme", &doc.Data.FastingScheme},
		{"user_name", &doc.Data.UserName},
		{"theme_mode", &doc.Data.ThemeMode},
		{"schema_version", &doc.Data.SchemaVersion},
	}
	for _, f := range stringFields {
		raw, ok := present(fields, f.name)
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return Document{}, 0, fmt.Errorf("%w: %s должен быть строкой", ErrInvalidBackup, f.name)
		}
		*f.dst = &v
	}
	if doc.Data.ThemeMode != nil && !themeModes[*doc.Data.ThemeMode] {
		return Document{}, 0, fmt.Errorf("%w: неизвестная тема %q", ErrInvalidBackup, *doc.Data.ThemeMode)
	}

	if raw, ok := present(fields, "has_accepted_terms"); ok {
		var b bool
		var str string
		if json.Unmarshal(raw, &b) != nil && json.Unmarshal(raw, &str) != nil {
			return Document{}, 0, fmt.Errorf("%w: has_accepted_terms должен быть строкой или bool", ErrInvalidBackup)
		}
		doc.Data.HasAcceptedTerms = raw
	}

	if raw, ok := present(fields, "legal_acceptance_v1"); ok {
		if !isObject(raw) {
			return Document{}, 0, fmt.Errorf("%w: legal_acceptance_v1 должен быть объектом", ErrInvalidBackup)
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return Document{}, 0, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
		}
		doc.Data.LegalAcceptance = buf.Bytes()
	}

	return doc, dropped, nil
}

// Import проверяет файл целиком и только потом записывает данные.
// Неверный файл не меняет ни одного ключа.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	doc, dropped, err := Parse(r)
	if err != nil {
		s.log.Warn("файл бэкапа отклонен", logger.Err(err))
		return ImportResult{}, err
	}
	return s.Apply(ctx, doc, dropped)
}

// Apply записывает проверенный документ
func (s *Service) Apply(ctx context.Context, doc Document, dropped int) (ImportResult, error) {
	res := ImportResult{HistoryDropped: dropped}
	var errs []error

	if doc.Data.HistoryFasting != nil {
		// SaveRaw заменяет список целиком, старый остается, если запись не удалась
		if err := s.history.SaveRaw(ctx, storage.KeyHistoryFasting, doc.Data.HistoryFasting); err != nil {
			errs = append(errs, err)
		} else {
			res.HistoryRecords = len(doc.Data.HistoryFasting)
			res.Keys = append(res.Keys, storage.KeyHistoryFasting)
		}
	}

	set := func(key string, value *string) {
		if value == nil {
			return
		}
		if err := s.kv.Set(ctx, key, *value); err != nil {
			errs = append(errs, err)
			return
		}
		res.Keys = append(res.Keys, key)
	}

	set(storage.KeyFastingStartTime, doc.Data.FastingStartTime)
	set(storage.KeyFastingScheme, doc.Data.FastingScheme)
	set(storage.KeyUserName, doc.Data.UserName)
	set(storage.KeyThemeMode, doc.Data.ThemeMode)
	set(storage.KeySchemaVersion, doc.Data.SchemaVersion)

	if len(doc.Data.HasAcceptedTerms) > 0 {
		var b bool
		var str string
		switch {
		case json.Unmarshal(doc.Data.HasAcceptedTerms, &b) == nil:
			if b {
				v := "true"
				set(storage.KeyHasAcceptedTerms, &v)
			}
		case json.Unmarshal(doc.Data.HasAcceptedTerms, &str) == nil:
			set(storage.KeyHasAcceptedTerms, &str)
		}
	}
	if len(doc.Data.LegalAcceptance) > 0 {
		v := string(doc.Data.LegalAcceptance)
		set(storage.KeyLegalAcceptance, &v)
	}

	if err := errors.Join(errs...); err != nil {
		s.log.Error("бэкап восстановлен не полностью", logger.Err(err))
		return res, err
	}
	s.log.Info("бэкап восстановлен", slog.Int("history", res.HistoryRecords), slog.Int("dropped", dropped))
	return res, nil
}

// Reset удаляет историю и все пользовательские ключи
func (s *Service) Reset(ctx context.Context) error {
	var errs []error
	if err := s.history.Remove(ctx, storage.KeyHistoryFasting); err != nil {
		errs = append(errs, err)
	}
	for _, key := range []string{
		storage.KeyFastingStartTime,
		storage.KeyFastingScheme,
		storage.KeyUserName,
		storage.KeyHasAcceptedTerms,
		storage.KeyLegalAcceptance,
		storage.KeyThemeMode,
		storage.KeyLastBackupExport,
	} {
		if err := s.kv.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) optional(ctx context.Context, key string) *string {
	v, found, err := s.kv.Get(ctx, key)
	if err != nil || !found {
		return nil
	}
	return &v
}

// present - поле есть и не null
func present(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, ok := fields[name]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return nil, false
	}
	return raw, true
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
