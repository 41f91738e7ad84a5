// Прокси-сервер Mini App:
//
//	GET  /api/v1/health      # проверка доступности
//	GET  /api/sticker-file   # файл стикера (.tgs) по file_id
//	GET  /api/stickers       # анимированные стикеры набора
//	POST /api/webhook        # обновления бота, всегда 200
//	GET  /api/webhook        # "Bot is active!"
package api

import (
	"bodytweaker/internal/app/server/api/http/envelope"
	healthAPI "bodytweaker/internal/app/server/api/http/health"
	"bodytweaker/internal/app/server/api/http/middleware"
	"bodytweaker/internal/app/server/api/http/middleware/logger"
	stickerAPI "bodytweaker/internal/app/server/api/http/sticker"
	webhookAPI "bodytweaker/internal/app/server/api/http/webhook"
	"bodytweaker/internal/app/server/config"
	"bodytweaker/internal/domain/bot"
	"bodytweaker/internal/domain/sticker"
	"bodytweaker/internal/infrastructure/telegram"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"
)

type Handlers struct {
	Health  *healthAPI.Handler
	Sticker *stickerAPI.Handler
	Webhook *webhookAPI.Handler
}

// Services доменные сервисы, которые обслуживает API.
type Services struct {
	Telegram healthAPI.Checker
	Sticker  sticker.Servicer
	Bot      bot.Servicer
}

// NewServices собирает сервисы поверх клиента Bot API.
// Возвращаемая функция освобождает фоновые ресурсы кэша.
func NewServices(cfg *config.Config, log *slog.Logger) (Services, func()) {
	tg := telegram.NewClient(cfg.Telegram.Token, log, telegram.WithBaseURL(cfg.Telegram.APIBase))

	stickers := sticker.NewService(tg, sticker.Config{
		DefaultSet: cfg.Telegram.StickerSet,
		SafeEmoji:  cfg.Telegram.SafeEmoji,
		CacheTTL:   cfg.Telegram.CacheTTL,
	}, log)
	bots := bot.NewService(tg, cfg.Telegram.WebAppURL, cfg.Telegram.WebhookSecret, log)

	return Services{Telegram: tg, Sticker: stickers, Bot: bots}, stickers.Close
}

// New создает *chi.Mux со всеми операциями, зарегистрированными через huma.
func New(services Services, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()
	mux.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	mux.MethodNotAllowed(envelope.MethodNotAllowed)

	cfg := huma.DefaultConfig("Body Tweaker API", "1.0.0")
	// ответы без поля $schema
	cfg.CreateHooks = nil

	API := humachi.New(mux, cfg)

	h := handlers(services, log)
	h.Health.SetupRoutes(API)
	h.Sticker.SetupRoutes(API)
	h.Webhook.SetupRoutes(API)

	return mux
}

func handlers(services Services, log *slog.Logger) *Handlers {
	loggerMW := logger.New(log)
	chain := middleware.NewChain(loggerMW.Middleware())

	return &Handlers{
		Health:  healthAPI.NewHandler(services.Telegram, log, chain.Build()),
		Sticker: stickerAPI.NewHandler(services.Sticker, log, chain.Build()),
		Webhook: webhookAPI.NewHandler(services.Bot, log, chain.Use(noStore).Build()),
	}
}

// noStore запрещает кэширование ответов вебхука.
func noStore(ctx huma.Context, next func(huma.Context)) {
	ctx.SetHeader("Cache-Control", "no-store")
	next(ctx)
}
