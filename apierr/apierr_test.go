package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"typed error", ErrForbidden, http.StatusForbidden, "forbidden", ErrForbidden.Message},
		{"custom message", ErrConflict.WithMessage("Email already registered"), http.StatusConflict, "conflict", "Email already registered"},
		{"wrapped typed error", fmt.Errorf("upload: %w", ErrStorage), http.StatusBadGateway, "storage_error", ErrStorage.Message},
		{"plain error is hidden", fmt.Errorf("pq: relation \"users\" does not exist"), http.StatusInternalServerError, "internal_error", ErrInternal.Message},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Write(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["code"])
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestWithMessageDoesNotMutate(t *testing.T) {
	custom := ErrNotFound.WithMessage("Upload not found")
	assert.Equal(t, "Upload not found", custom.Message)
	assert.Equal(t, "Resource not found", ErrNotFound.Message)
	assert.Equal(t, ErrNotFound.Status, custom.Status)
}
