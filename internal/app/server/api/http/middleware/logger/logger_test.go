package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type pingOutput struct {
	Body struct {
		Pong bool `json:"pong"`
	}
}

func TestLogger_Middleware(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		fail      int
		wantLevel string
		wantCode  int
	}{
		{name: "ok", path: "/ping", wantLevel: "INFO", wantCode: http.StatusOK},
		{name: "client error", path: "/bad", fail: http.StatusBadRequest, wantLevel: "WARN", wantCode: http.StatusBadRequest},
		{name: "server error", path: "/boom", fail: http.StatusInternalServerError, wantLevel: "ERROR", wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			mw := New(log)

			_, api := humatest.New(t)
			huma.Register(api, huma.Operation{
				OperationID: "op-" + tt.name,
				Method:      http.MethodGet,
				Path:        tt.path,
				Middlewares: huma.Middlewares{mw.Middleware()},
			}, func(_ context.Context, _ *struct{}) (*pingOutput, error) {
				if tt.fail != 0 {
					return nil, huma.NewError(tt.fail, "fail")
				}
				out := &pingOutput{}
				out.Body.Pong = true
				return out, nil
			})

			resp := api.Get(tt.path)
			require.Equal(t, tt.wantCode, resp.Code)

			line := strings.TrimSpace(buf.String())
			var entry map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &entry))
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "HTTP request", entry["msg"])
			assert.Equal(t, "http_logger", entry["component"])
			assert.Equal(t, http.MethodGet, entry["method"])
			assert.Equal(t, tt.path, entry["path"])
			assert.EqualValues(t, tt.wantCode, entry["status"])
		})
	}
}
