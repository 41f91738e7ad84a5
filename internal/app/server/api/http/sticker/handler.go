package sticker

import (
	"context"
	"errors"
	"net/http"

	"bodytweaker/internal/app/server/api/http/envelope"
	"bodytweaker/internal/domain/sticker"
	"bodytweaker/internal/infrastructure/telegram"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

type Handler struct {
	service    sticker.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service sticker.Servicer, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.fileOp(), h.file)
	huma.Register(api, h.listOp(), h.list)
}

func (h *Handler) file(ctx context.Context, input *fileInput) (*fileOutput, error) {
	data, err := h.service.File(ctx, input.FileID)
	if err != nil {
		return nil, h.toEnvelope(err)
	}

	return &fileOutput{
		ContentType:  ContentTypeTGS,
		CacheControl: CacheFile,
		Body:         data,
	}, nil
}

func (h *Handler) list(ctx context.Context, input *listInput) (*listOutput, error) {
	list, err := h.service.List(ctx, input.Set, input.Emoji)
	if err != nil {
		return nil, h.toEnvelope(err)
	}

	return &listOutput{
		CacheControl: CacheList,
		Body:         list,
	}, nil
}

func (h *Handler) toEnvelope(err error) *envelope.Error {
	var apiErr *telegram.APIError

	switch {
	case errors.Is(err, sticker.ErrNoFileID):
		return envelope.New(http.StatusBadRequest, msgNoFileID)
	case errors.Is(err, sticker.ErrNoToken):
		return envelope.New(http.StatusInternalServerError, msgNoToken)
	case errors.Is(err, sticker.ErrResolve):
		return envelope.New(http.StatusInternalServerError, msgResolve)
	case errors.Is(err, sticker.ErrFetch):
		return envelope.New(http.StatusInternalServerError, msgFetch)
	case errors.Is(err, sticker.ErrUpstream):
		if errors.As(err, &apiErr) && apiErr.Description != "" {
			return envelope.New(http.StatusInternalServerError, apiErr.Description)
		}
		return envelope.New(http.StatusInternalServerError, msgUpstream)
	default:
		h.log.Error("sticker proxy failed", slog.String("error", err.Error()))
		return envelope.New(http.StatusInternalServerError, msgUnexpected)
	}
}
