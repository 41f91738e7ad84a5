package envelope

import (
	"encoding/json"
	"net/http"
)

const MsgMethodNotAllowed = "Method not allowed"

// Error конверт ошибки прокси-эндпоинтов: {"ok": false, "error": "..."}.
// Реализует huma.StatusError, поэтому huma отдаёт его как тело ответа.
type Error struct {
	Status  int    `json:"-"`
	OK      bool   `json:"ok"`
	Message string `json:"error"`
}

func New(status int, msg string) *Error {
	return &Error{Status: status, Message: msg}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) GetStatus() int {
	return e.Status
}

// MethodNotAllowed обработчик chi для неподдерживаемых методов.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(New(http.StatusMethodNotAllowed, MsgMethodNotAllowed))
}
