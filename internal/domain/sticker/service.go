package sticker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"bodytweaker/internal/infrastructure/cache"
	"bodytweaker/internal/infrastructure/telegram"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSet       = "animatedemojies"
	DefaultCacheTTL  = 30 * time.Minute
	DefaultSafeEmoji = "✨,🔥,🚀,🏆,🌬️,✅,📘"

	cacheSize = 64
)

var (
	ErrNoToken    = errors.New("sticker: bot token missing")
	ErrNoFileID   = errors.New("sticker: file_id is required")
	ErrResolve    = errors.New("sticker: failed to resolve file")
	ErrFetch      = errors.New("sticker: failed to fetch file")
	ErrUpstream   = errors.New("sticker: telegram api error")
	ErrUnexpected = errors.New("sticker: unexpected error")
)

type Telegram interface {
	HasToken() bool
	GetFile(ctx context.Context, fileID string) (telegram.File, error)
	DownloadFile(ctx context.Context, filePath string) ([]byte, error)
	GetStickerSet(ctx context.Context, name string) (telegram.StickerSet, error)
}

type Servicer interface {
	File(ctx context.Context, fileID string) ([]byte, error)
	List(ctx context.Context, set, emoji string) (List, error)
}

type Item struct {
	FileID string `json:"file_id"`
	Emoji  string `json:"emoji,omitempty"`
}

type List struct {
	OK       bool   `json:"ok"`
	Set      string `json:"set"`
	Count    int    `json:"count"`
	Stickers []Item `json:"stickers"`
}

type Config struct {
	DefaultSet string
	SafeEmoji  []string
	CacheTTL   time.Duration
}

type Service struct {
	tg         Telegram
	cache      *cache.TTL[List]
	group      singleflight.Group
	defaultSet string
	safeEmoji  []string
	log        *slog.Logger
}

func NewService(tg Telegram, cfg Config, log *slog.Logger) *Service {
	if cfg.DefaultSet == "" {
		cfg.DefaultSet = DefaultSet
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.SafeEmoji == nil {
		cfg.SafeEmoji = ParseEmojiList(DefaultSafeEmoji)
	}

	return &Service{
		tg:         tg,
		cache:      cache.NewTTL[List](cfg.CacheTTL, cacheSize, cache.WithCleanup[List](time.Minute)),
		defaultSet: cfg.DefaultSet,
		safeEmoji:  cfg.SafeEmoji,
		log:        log.With(slog.String("component", "sticker_service")),
	}
}

// File скачивает файл стикера по file_id.
func (s *Service) File(ctx context.Context, fileID string) ([]byte, error) {
	if !s.tg.HasToken() {
		return nil, ErrNoToken
	}
	if fileID == "" {
		return nil, ErrNoFileID
	}

	f, err := s.tg.GetFile(ctx, fileID)
	if err != nil {
		s.log.Warn("getFile failed", slog.String("file_id", fileID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrResolve, err)
	}

	data, err := s.tg.DownloadFile(ctx, f.FilePath)
	if err != nil {
		s.log.Warn("download failed", slog.String("file_id", fileID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return data, nil
}

// List возвращает анимированные стикеры набора, отфильтрованные по эмодзи.
// Пустой emoji означает безопасный список по умолчанию.
func (s *Service) List(ctx context.Context, set, emoji string) (List, error) {
	if !s.tg.HasToken() {
		return List{}, ErrNoToken
	}
	if set == "" {
		set = s.defaultSet
	}
	filter := ParseEmojiList(emoji)
	if emoji == "" {
		filter = s.safeEmoji
	}

	key := set + "|" + strings.Join(filter, ",")
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		stickerSet, err := s.tg.GetStickerSet(ctx, set)
		if err != nil {
			return List{}, err
		}
		list := build(set, stickerSet.Stickers, filter)
		s.cache.Set(key, list)
		return list, nil
	})
	if err != nil {
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) {
			s.log.Warn("getStickerSet rejected", slog.String("set", set), slog.String("error", apiErr.Error()))
			return List{}, fmt.Errorf("%w: %w", ErrUpstream, apiErr)
		}
		s.log.Error("getStickerSet failed", slog.String("set", set), slog.String("error", err.Error()))
		return List{}, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}
	return v.(List), nil
}

func (s *Service) Close() {
	s.cache.Close()
}

func build(set string, stickers []telegram.Sticker, filter []string) List {
	items := make([]Item, 0, len(stickers))
	for _, st := range stickers {
		if !st.IsAnimated {
			continue
		}
		if len(filter) > 0 && (st.Emoji == "" || !slices.Contains(filter, st.Emoji)) {
			continue
		}
		items = append(items, Item{FileID: st.FileID, Emoji: st.Emoji})
	}
	return List{OK: true, Set: set, Count: len(items), Stickers: items}
}

// ParseEmojiList разбирает список через запятую, отбрасывая пустые элементы.
func ParseEmojiList(s string) []string {
	out := make([]string, 0)
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
