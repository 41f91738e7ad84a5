package sticker

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) fileOp() huma.Operation {
	return huma.Operation{
		OperationID: "sticker-file",
		Method:      http.MethodGet,
		Path:        "/api/sticker-file",
		Summary:     "Файл стикера",
		Description: "Проксирует getFile и скачивание файла Bot API. Отдает .tgs с долгим кэшем.",
		Tags:        []string{"stickers"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "stickers-list",
		Method:      http.MethodGet,
		Path:        "/api/stickers",
		Summary:     "Анимированные стикеры набора",
		Description: "Проксирует getStickerSet, оставляет анимированные стикеры из списка эмодзи.",
		Tags:        []string{"stickers"},
		Middlewares: h.middleware,
	}
}
