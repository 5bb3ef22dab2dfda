package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

func TestUserContext(t *testing.T) {
	var seen string
	h := UserContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing user", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stock-in/sessions/x", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
	})

	t.Run("health is exempt", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("user propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stock-in/sessions/x", nil)
		req.Header.Set("X-User-ID", "user-7")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "user-7", seen)
	})
}

func TestValidate_UsesJSONNames(t *testing.T) {
	type box struct {
		LocationID string `json:"location_id" validate:"required"`
	}
	type payload struct {
		StockInID string `json:"stock_in_id" validate:"required,uuid"`
		Boxes     []box  `json:"boxes" validate:"required,min=1,dive"`
	}

	err := Validate(&payload{StockInID: "nope", Boxes: []box{{}}})

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Equal(t, "must be a valid UUID", appErr.Details["stock_in_id"])
	assert.Equal(t, "this field is required", appErr.Details["boxes[0].location_id"])
}

func TestError_NonAppErrorIsInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, strings.Contains(rr.Body.String(), assert.AnError.Error()))
}

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("test", &buf)
	h := RequestID(Recoverer(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stock-in/process", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), rr.Header().Get("X-Request-ID"))
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("test", &buf)
	h := Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Error(w, errors.Conflict("already processing"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, float64(http.StatusConflict), line["status"])
	assert.Greater(t, line["bytes"], float64(0))
}
