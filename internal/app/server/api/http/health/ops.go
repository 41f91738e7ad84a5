package health

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) healthCheckOp() huma.Operation {
	return huma.Operation{
		OperationID:   "health-check",
		Method:        http.MethodGet,
		Path:          "/api/v1/health",
		Summary:       "Проверка доступности",
		Description:   "Отвечает 200, пока процесс жив. Поле telegram показывает, задан ли токен бота: без него прокси стикеров отвечают 500.",
		DefaultStatus: http.StatusOK,
		Tags:          []string{"health"},
		Middlewares:   h.middleware,
	}
}
