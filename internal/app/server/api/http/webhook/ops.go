package webhook

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) updateOp() huma.Operation {
	return huma.Operation{
		OperationID:   "webhook-update",
		Method:        http.MethodPost,
		Path:          "/api/webhook",
		Summary:       "Обновление от Telegram",
		Description:   "Всегда отвечает 200, чтобы Telegram не повторял доставку.",
		Tags:          []string{"webhook"},
		DefaultStatus: http.StatusOK,
		Middlewares:   h.middleware,
	}
}

// statusMethods - все, кроме POST, отвечают текстом о работе бота
var statusMethods = []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete}

func (h *Handler) statusOp(method string) huma.Operation {
	return huma.Operation{
		OperationID: "webhook-status-" + strings.ToLower(method),
		Method:      method,
		Path:        "/api/webhook",
		Summary:     "Проверка вебхука",
		Tags:        []string{"webhook"},
		Middlewares: h.middleware,
	}
}
