package webhook

import (
	"context"
	"encoding/json"
	"time"

	"bodytweaker/internal/domain/bot"
	"bodytweaker/internal/infrastructure/telegram"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

const sendTimeout = 10 * time.Second

type Handler struct {
	service    bot.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service bot.Servicer, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.updateOp(), h.update)
	for _, method := range statusMethods {
		huma.Register(api, h.statusOp(method), h.status)
	}
}

// update никогда не возвращает ошибку: любой сбой даёт 200 с ok=false.
func (h *Handler) update(ctx context.Context, input *updateInput) (*updateOutput, error) {
	if err := h.service.Authorize(input.SecretToken); err != nil {
		h.log.Warn("webhook rejected", slog.String("error", err.Error()))
		return &updateOutput{Body: response{OK: false}}, nil
	}

	var upd telegram.Update
	if err := json.Unmarshal(input.RawBody, &upd); err != nil {
		h.log.Warn("malformed update", slog.String("error", err.Error()))
		return &updateOutput{Body: response{OK: false}}, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := h.service.Handle(sendCtx, upd); err != nil {
		h.log.Error("error sending message", slog.Int64("update_id", upd.UpdateID), slog.String("error", err.Error()))
		return &updateOutput{Body: response{OK: false}}, nil
	}

	return &updateOutput{Body: response{OK: true}}, nil
}

func (h *Handler) status(_ context.Context, _ *struct{}) (*statusOutput, error) {
	return &statusOutput{
		ContentType: ContentTypeText,
		Body:        []byte(ActiveText),
	}, nil
}
