package commit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// ProcessPath is the path of the atomic commit endpoint
const ProcessPath = "/api/v1/stock-in/process"

const maxResponseBody = 1 << 20

// RemoteStrategy hands the whole batch set to the atomic commit endpoint
// in a single call
type RemoteStrategy struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewRemoteStrategy creates the remote strategy for the endpoint at baseURL
func NewRemoteStrategy(baseURL string, timeout time.Duration, log *logger.Logger) *RemoteStrategy {
	return &RemoteStrategy{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithComponent("commit.remote"),
	}
}

// Name implements Strategy
func (r *RemoteStrategy) Name() string {
	return domain.StrategyRemote
}

// processResponse accepts both the standard envelope and a bare body
type processResponse struct {
	BatchIDs []string `json:"batch_ids"`
	Replayed bool     `json:"replayed"`
	Data     *struct {
		BatchIDs []string `json:"batch_ids"`
		Replayed bool     `json:"replayed"`
	} `json:"data"`
}

// Execute implements Strategy. Every failure, including an unreadable
// success body, is a RemoteProcessingFailure.
func (r *RemoteStrategy) Execute(ctx context.Context, req domain.CommitRequest, progress domain.ProgressFunc) (*domain.CommitResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.RemoteProcessingFailure("failed to encode commit payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+ProcessPath, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.RemoteProcessingFailure("failed to create commit request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", req.UserID)
	httpReq.Header.Set("Idempotency-Key", req.RunID)
	if requestID := httputil.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	if progress != nil {
		progress(domain.Progress{Current: 0, Total: len(req.Batches)})
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.RemoteProcessingFailure("commit endpoint unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.RemoteProcessingFailure("failed to read commit response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.RemoteProcessingFailure(remoteErrorMessage(resp.StatusCode, body), nil).
			WithDetails(map[string]string{"status": fmt.Sprintf("%d", resp.StatusCode)})
	}

	var parsed processResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.RemoteProcessingFailure("commit response is not valid JSON", err)
	}
	ids, replayed := parsed.BatchIDs, parsed.Replayed
	if parsed.Data != nil {
		ids, replayed = parsed.Data.BatchIDs, parsed.Data.Replayed
	}
	if len(ids) == 0 {
		return nil, errors.RemoteProcessingFailure("commit response carried no batch ids", nil)
	}

	if progress != nil {
		progress(domain.Progress{Current: len(req.Batches), Total: len(req.Batches)})
	}

	r.logger.Info().
		Str("stock_in_id", req.StockInID).
		Str("run_id", req.RunID).
		Int("batches", len(ids)).
		Bool("replayed", replayed).
		Msg("stock-in committed remotely")

	strategy := domain.StrategyRemote
	if replayed {
		strategy = domain.StrategyReplay
	}
	return &domain.CommitResult{BatchIDs: ids, Strategy: strategy, Replayed: replayed}, nil
}

// remoteErrorMessage turns a non-2xx body into a human-readable message
func remoteErrorMessage(status int, body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		var plain string
		switch {
		case len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "":
			return nested.Message
		case len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &plain) == nil && plain != "":
			return plain
		case envelope.Message != "":
			return envelope.Message
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("commit endpoint returned %d %s", status, http.StatusText(status))
}
