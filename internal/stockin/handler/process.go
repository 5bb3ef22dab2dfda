package handler

import (
	"net/http"

	"github.com/wareflow/wareflow-backend/internal/stockin/commit"
	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// ProcessHandler serves the atomic commit endpoint
type ProcessHandler struct {
	executor *commit.AtomicExecutor
	logger   *logger.Logger
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(executor *commit.AtomicExecutor, log *logger.Logger) *ProcessHandler {
	return &ProcessHandler{
		executor: executor,
		logger:   log,
	}
}

// Process commits a finalized batch set in one transaction
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req domain.CommitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	userID := httputil.GetUserID(r.Context())
	if req.UserID != "" && req.UserID != userID {
		httputil.Error(w, errors.ValidationField("user_id", "must match the X-User-ID header"))
		return
	}
	req.UserID = userID
	if key := r.Header.Get("Idempotency-Key"); key != "" && key != req.RunID {
		httputil.Error(w, errors.ValidationField("run_id", "must match the Idempotency-Key header"))
		return
	}

	result, err := h.executor.Execute(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
