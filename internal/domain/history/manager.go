package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"bodytweaker/internal/domain/events"
	"bodytweaker/internal/domain/storage"
	"bodytweaker/internal/utils/logger"
)

const (
	metaSuffix = "__meta"
	// сколько шардов читать одновременно
	readParallelism = 8
	// сколько раз пересобирать шарды, если облако не приняло значение
	repackAttempts = 3
	// верхняя граница индекса шарда, см. nextBase
	maxShardIndex = 3 * DefaultMaxChunks
)

var (
	// ErrRecordTooLarge - одна запись не помещается в значение облака
	ErrRecordTooLarge = errors.New("history record exceeds value ceiling")
	ErrInvalidRecord  = errors.New("invalid history record")
)

// Store - часть фасада хранилища, нужная менеджеру истории
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	GetLocal(key string) (string, bool)
	GetRemote(ctx context.Context, key string) (string, bool, error)
	Write(ctx context.Context, key, value string) (storage.WriteResult, error)
	Remove(ctx context.Context, key string) error
	StoredLen(n int) int
}

// Meta описывает шарды логического списка: они лежат в ключах key_<Base>..key_<Base+Chunks-1>
type Meta struct {
	Chunks    int    `json:"chunks"`
	Total     int    `json:"total"`
	UpdatedAt string `json:"updatedAt"`
	Base      int    `json:"base,omitempty"`
}

func (m Meta) updated() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, m.UpdatedAt)
	return t
}

// span - занятый списком диапазон шардов
type span struct {
	base   int
	chunks int
}

// Manager хранит списки записей, разбитые по нескольким ключам (key_0, key_1, ...),
// чтобы каждое значение помещалось в потолок облака. Новые шарды пишутся рядом
// со старыми, список переключается записью meta.
//
// Update сериализован по ключу внутри процесса. Два процесса, пишущие один список,
// могут потерять запись в узком окне между чтением и записью.
type Manager[T any] struct {
	store  Store
	decode func(json.RawMessage) (T, bool)
	bus    *events.Bus[events.HistoryUpdated]
	cfg    Config
	log    *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager[T any](store Store, decode func(json.RawMessage) (T, bool), bus *events.Bus[events.HistoryUpdated], cfg Config, log *slog.Logger) *Manager[T] {
	return &Manager[T]{
		store:  store,
		decode: decode,
		bus:    bus,
		cfg:    cfg.withDefaults(),
		log:    log.With(slog.String("component", "history")),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// NewRecordManager - менеджер для записей сессий
func NewRecordManager(store Store, bus *events.Bus[events.HistoryUpdated], cfg Config, log *slog.Logger) *Manager[Record] {
	return NewManager(store, DecodeRecord, bus, cfg, log)
}

type reader func(ctx context.Context, key string) (string, bool)

// remoteFirst читает через фасад (облако, затем локально)
func (m *Manager[T]) remoteFirst(ctx context.Context, key string) (string, bool) {
	v, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return v, ok
}

// localFirst читает локальную копию, облако только если локально пусто
func (m *Manager[T]) localFirst(ctx context.Context, key string) (string, bool) {
	if v, ok := m.store.GetLocal(key); ok {
		return v, true
	}
	return m.remoteFirst(ctx, key)
}

func (m *Manager[T]) localOnly(_ context.Context, key string) (string, bool) {
	return m.store.GetLocal(key)
}

// Get возвращает список. Битые шарды и записи неправильной формы пропускаются.
// Если локальная копия записана позже облачной, облако не читается.
func (m *Manager[T]) Get(ctx context.Context, key string) ([]T, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	unlock := m.lock(key)
	defer unlock()

	return m.read(ctx, key, m.source(ctx, key)), nil
}

// source выбирает, откуда читать список
func (m *Manager[T]) source(ctx context.Context, key string) reader {
	if m.localNewer(ctx, key) {
		m.log.Debug("локальная история новее облачной", slog.String("key", key))
		return m.localOnly
	}
	return m.remoteFirst
}

// localNewer сравнивает updatedAt локальной и облачной meta
func (m *Manager[T]) localNewer(ctx context.Context, key string) bool {
	localMeta, ok := m.readMeta(ctx, key, m.localOnly)
	if !ok {
		return false
	}

	raw, found, err := m.store.GetRemote(ctx, metaKey(key))
	if err != nil {
		// облако недоступно, remoteFirst и так прочитает локально
		return false
	}
	if !found {
		return true
	}
	remoteMeta, ok := parseMeta(raw)
	if !ok {
		return true
	}
	return localMeta.updated().After(remoteMeta.updated())
}

// Save перезаписывает список целиком
func (m *Manager[T]) Save(ctx context.Context, key string, records []T) error {
	raw := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			m.log.Warn("запись не сериализуется, пропускаем", slog.String("key", key), logger.Err(err))
			continue
		}
		raw = append(raw, b)
	}
	return m.SaveRaw(ctx, key, raw)
}

// SaveRaw перезаписывает список из JSON, отбрасывая записи неправильной формы
func (m *Manager[T]) SaveRaw(ctx context.Context, key string, records []json.RawMessage) error {
	if err := validateKey(key); err != nil {
		return err
	}

	unlock := m.lock(key)
	defer unlock()

	items := m.filter(records)
	if len(items) > m.cfg.MaxItems {
		m.log.Warn("список длиннее лимита, обрезаем",
			slog.String("key", key),
			slog.Int("items", len(items)),
			slog.Int("max", m.cfg.MaxItems),
		)
		items = items[:m.cfg.MaxItems]
	}

	if err := m.write(ctx, key, items); err != nil {
		return err
	}
	m.notify(key)
	return nil
}

// Update добавляет запись в начало списка и обрезает его до maxItems (<= 0 - лимит из конфига).
// Чтение идет из локальной копии, чтобы окно между чтением и записью было минимальным.
func (m *Manager[T]) Update(ctx context.Context, key string, record T, maxItems int) ([]T, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if maxItems <= 0 {
		maxItems = m.cfg.MaxItems
	}

	b, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if _, ok := m.decode(b); !ok {
		return nil, ErrInvalidRecord
	}

	unlock := m.lock(key)
	defer unlock()

	current := m.read(ctx, key, m.localFirst)

	list := make([]T, 0, len(current)+1)
	list = append(list, record)
	list = append(list, current...)
	if len(list) > maxItems {
		list = list[:maxItems]
	}

	items := make([]json.RawMessage, 0, len(list))
	items = append(items, b)
	for _, r := range list[1:] {
		raw, err := json.Marshal(r)
		if err != nil {
			continue
		}
		items = append(items, raw)
	}

	if err := m.write(ctx, key, items); err != nil {
		return nil, err
	}
	m.notify(key)
	return list, nil
}

// Remove удаляет meta, все шарды из meta (и несколько сверх того) и старый одиночный ключ
func (m *Manager[T]) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	unlock := m.lock(key)
	defer unlock()

	prev := m.previous(ctx, key)

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(m.store.Remove(ctx, metaKey(key)))
	for i := 0; i < prev.base+prev.chunks+m.cfg.ExtraCleanup; i++ {
		keep(m.store.Remove(ctx, shardKey(key, i)))
	}
	keep(m.store.Remove(ctx, key))

	m.notify(key)
	return firstErr
}

// ReadMeta возвращает meta списка, если она есть и читается
func (m *Manager[T]) ReadMeta(ctx context.Context, key string) (Meta, bool) {
	return m.readMeta(ctx, key, m.source(ctx, key))
}

func (m *Manager[T]) read(ctx context.Context, key string, get reader) []T {
	if legacy, ok := m.migrateLegacy(ctx, key, get); ok {
		return legacy
	}

	metaRaw, found := get(ctx, metaKey(key))
	if !found {
		return []T{}
	}

	var base, chunks int
	if meta, ok := parseMeta(metaRaw); ok {
		base, chunks = meta.Base, min(meta.Chunks, m.cfg.MaxChunks)
	} else {
		// без meta неизвестно, где лежат шарды, ищем с нулевого
		m.log.Warn("meta истории повреждена, ищем шарды", slog.String("key", key))
		chunks = m.countChunks(ctx, key, get)
	}
	if chunks == 0 {
		return []T{}
	}

	shards := make([][]json.RawMessage, chunks)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readParallelism)
	for i := 0; i < chunks; i++ {
		g.Go(func() error {
			raw, ok := get(gctx, shardKey(key, base+i))
			if !ok {
				m.log.Warn("шард истории отсутствует", slog.String("key", key), slog.Int("shard", i))
				return nil
			}
			var items []json.RawMessage
			if err := json.Unmarshal([]byte(raw), &items); err != nil {
				m.log.Warn("шард истории поврежден", slog.String("key", key), slog.Int("shard", i), logger.Err(err))
				return nil
			}
			shards[i] = items
			return nil
		})
	}
	_ = g.Wait()

	out := make([]T, 0)
	for _, shard := range shards {
		for _, raw := range shard {
			if v, ok := m.decode(raw); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

// migrateLegacy переносит список, хранившийся одним ключом, в шарды
func (m *Manager[T]) migrateLegacy(ctx context.Context, key string, get reader) ([]T, bool) {
	raw, found := get(ctx, key)
	if !found {
		return nil, false
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil || len(items) == 0 {
		return nil, false
	}

	m.log.Info("переносим историю из одного ключа в шарды", slog.String("key", key), slog.Int("items", len(items)))

	valid := m.filter(items)
	if len(valid) > m.cfg.MaxItems {
		valid = valid[:m.cfg.MaxItems]
	}
	if err := m.write(ctx, key, valid); err != nil {
		m.log.Error("перенос истории не удался", slog.String("key", key), logger.Err(err))
	} else if err := m.store.Remove(ctx, key); err != nil {
		m.log.Warn("старый ключ истории не удален", slog.String("key", key), logger.Err(err))
	}

	out := make([]T, 0, len(valid))
	for _, raw := range valid {
		if v, ok := m.decode(raw); ok {
			out = append(out, v)
		}
	}
	return out, true
}

// write раскладывает записи по новым шардам, не задевая текущие, переключает
// список записью meta и только потом удаляет старые шарды. При ошибке уже
// записанные новые шарды удаляются, старый список остается целым.
func (m *Manager[T]) write(ctx context.Context, key string, items []json.RawMessage) error {
	for _, item := range items {
		if m.store.StoredLen(len(item)+2) > m.cfg.CeilingBytes {
			m.log.Error("запись истории больше потолка значения", slog.String("key", key), slog.Int("bytes", len(item)))
			return ErrRecordTooLarge
		}
	}

	oldMeta, hadMeta := m.localFirst(ctx, metaKey(key))
	prev := m.previous(ctx, key)

	target := m.cfg.target()
	var (
		shards []shard
		next   span
	)
	for attempt := 0; ; attempt++ {
		shards = pack(items, target, m.store.StoredLen)
		if len(shards) > m.cfg.MaxChunks {
			m.log.Warn("шардов больше лимита, старые записи не сохранятся",
				slog.String("key", key),
				slog.Int("shards", len(shards)),
			)
			shards = shards[:m.cfg.MaxChunks]
		}
		next = span{base: nextBase(prev, len(shards)), chunks: len(shards)}

		tooLarge, err := m.writeShards(ctx, key, next.base, shards)
		if err != nil {
			return err
		}
		if !tooLarge {
			break
		}
		if attempt == repackAttempts {
			m.log.Error("облако не принимает шарды истории, облачная копия неполная", slog.String("key", key))
			break
		}
		m.dropShards(ctx, key, next)
		target = target * 3 / 4
		m.log.Warn("облако не приняло шард, пересобираем мельче", slog.String("key", key), slog.Int("target", target))
	}

	total := 0
	for _, sh := range shards {
		total += sh.count
	}
	meta, err := json.Marshal(Meta{
		Chunks:    next.chunks,
		Total:     total,
		UpdatedAt: m.now().UTC().Format(time.RFC3339Nano),
		Base:      next.base,
	})
	if err != nil {
		m.dropShards(ctx, key, next)
		return err
	}
	if _, err := m.store.Write(ctx, metaKey(key), string(meta)); err != nil {
		// облако могло принять новую meta, возвращаем старую
		if hadMeta {
			_, _ = m.store.Write(ctx, metaKey(key), oldMeta)
		} else {
			_ = m.store.Remove(ctx, metaKey(key))
		}
		m.dropShards(ctx, key, next)
		return fmt.Errorf("ошибка записи meta истории: %w", err)
	}

	m.dropShards(ctx, key, prev)
	return nil
}

// nextBase выбирает начало диапазона для n новых шардов, не пересекающегося со старым.
// Индексы остаются меньше 3*MaxChunks.
func nextBase(prev span, n int) int {
	if n <= prev.base {
		return 0
	}
	return prev.base + prev.chunks
}

// writeShards пишет шарды начиная с base. tooLarge - облако отказалось принять хотя бы один.
// При локальной ошибке записанные шарды удаляются.
func (m *Manager[T]) writeShards(ctx context.Context, key string, base int, shards []shard) (tooLarge bool, err error) {
	for i, sh := range shards {
		res, err := m.store.Write(ctx, shardKey(key, base+i), sh.body)
		if err != nil {
			m.dropShards(ctx, key, span{base: base, chunks: i + 1})
			return false, fmt.Errorf("ошибка записи шарда %d: %w", i, err)
		}
		if errors.Is(res.Remote, storage.ErrRemoteTooLarge) {
			tooLarge = true
		}
	}
	return tooLarge, nil
}

func (m *Manager[T]) dropShards(ctx context.Context, key string, sp span) {
	for i := sp.base; i < sp.base+sp.chunks; i++ {
		if err := m.store.Remove(ctx, shardKey(key, i)); err != nil {
			m.log.Warn("шард не удален", slog.String("key", key), slog.Int("shard", i), logger.Err(err))
		}
	}
}

// previous - где лежали шарды до записи. Без meta считаем подряд идущие шарды с нулевого.
func (m *Manager[T]) previous(ctx context.Context, key string) span {
	if meta, ok := m.readMeta(ctx, key, m.localFirst); ok {
		return span{base: meta.Base, chunks: min(meta.Chunks, m.cfg.MaxChunks)}
	}
	return span{chunks: m.countChunks(ctx, key, m.localFirst)}
}

func (m *Manager[T]) readMeta(ctx context.Context, key string, get reader) (Meta, bool) {
	raw, found := get(ctx, metaKey(key))
	if !found {
		return Meta{}, false
	}
	return parseMeta(raw)
}

func parseMeta(raw string) (Meta, bool) {
	var meta Meta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil || meta.Chunks < 0 || meta.Base < 0 {
		return Meta{}, false
	}
	return meta, true
}

// countChunks считает шарды до первого отсутствующего
func (m *Manager[T]) countChunks(ctx context.Context, key string, get reader) int {
	n := 0
	for n < m.cfg.MaxChunks {
		if _, ok := get(ctx, shardKey(key, n)); !ok {
			break
		}
		n++
	}
	return n
}

// filter оставляет записи правильной формы в компактном JSON
func (m *Manager[T]) filter(records []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(records))
	for _, raw := range records {
		if _, ok := m.decode(raw); !ok {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			continue
		}
		out = append(out, buf.Bytes())
	}
	return out
}

func (m *Manager[T]) notify(key string) {
	if m.bus != nil {
		m.bus.Publish(events.HistoryUpdated{Key: key})
	}
}

func (m *Manager[T]) lock(key string) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func metaKey(key string) string {
	return key + metaSuffix
}

func shardKey(key string, i int) string {
	return key + "_" + strconv.Itoa(i)
}

// validateKey проверяет сам ключ и самый длинный из производных
func validateKey(key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	return storage.ValidateKey(shardKey(key, maxShardIndex) + metaSuffix)
}
