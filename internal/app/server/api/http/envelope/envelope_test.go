package envelope

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_StatusError(t *testing.T) {
	var se huma.StatusError = New(http.StatusBadRequest, "file_id is required")

	assert.Equal(t, http.StatusBadRequest, se.GetStatus())
	assert.Equal(t, "file_id is required", se.Error())

	raw, err := json.Marshal(se)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"error":"file_id is required"}`, string(raw))
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, httptest.NewRequest(http.MethodPost, "/api/stickers", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":false,"error":"Method not allowed"}`, rec.Body.String())
}
