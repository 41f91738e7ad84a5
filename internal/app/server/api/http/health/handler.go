package health

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

const (
	StatusOK = "OK"

	TelegramConfigured = "configured"
	TelegramMissing    = "missing"
)

// Checker сообщает, может ли сервер ходить в Bot API.
type Checker interface {
	HasToken() bool
}

type Handler struct {
	checker    Checker
	started    time.Time
	now        func() time.Time
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(checker Checker, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		checker:    checker,
		started:    time.Now(),
		now:        time.Now,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

// healthCheck всегда отвечает OK: без токена прокси работают, но отдают 500.
func (h *Handler) healthCheck(_ context.Context, _ *Input) (*Output, error) {
	tg := TelegramMissing
	if h.checker != nil && h.checker.HasToken() {
		tg = TelegramConfigured
	}
	h.log.Debug("health check", slog.String("telegram", tg))

	return &Output{
		Body: Response{
			Status:   StatusOK,
			Telegram: tg,
			Uptime:   int64(h.now().Sub(h.started) / time.Second),
		},
	}, nil
}
