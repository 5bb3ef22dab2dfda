package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/wareflow/wareflow-backend/internal/stockin/allocation"
	"github.com/wareflow/wareflow-backend/internal/stockin/service"
	"github.com/wareflow/wareflow-backend/internal/stockin/session"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// SessionHandler handles draft session endpoints
type SessionHandler struct {
	service *service.StockInService
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(svc *service.StockInService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  log,
	}
}

// StartSessionRequest opens a session for a stock-in request
type StartSessionRequest struct {
	StockInID string `json:"stock_in_id" validate:"required,uuid"`
}

// AllocateBatchRequest places count boxes at one location
type AllocateBatchRequest struct {
	WarehouseID    string          `json:"warehouse_id" validate:"required"`
	LocationID     string          `json:"location_id" validate:"required"`
	Count          int             `json:"count" validate:"gte=1"`
	QuantityPerBox decimal.Decimal `json:"quantity_per_box"`
	Color          string          `json:"color"`
	Size           string          `json:"size"`
}

// BoxRequest is one box with its own destination
type BoxRequest struct {
	WarehouseID string          `json:"warehouse_id" validate:"required"`
	LocationID  string          `json:"location_id" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	Color       string          `json:"color"`
	Size        string          `json:"size"`
}

// AllocateBoxesRequest places boxes with individual destinations
type AllocateBoxesRequest struct {
	Boxes []BoxRequest `json:"boxes" validate:"required,min=1,dive"`
}

// SessionView is a session with its derived counters
type SessionView struct {
	*session.Session
	Allocated int `json:"allocated"`
	Remaining int `json:"remaining"`
}

func viewOf(s *session.Session) SessionView {
	return SessionView{Session: s, Allocated: s.Allocated(), Remaining: s.Remaining()}
}

// Start opens a draft session
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	sess, err := h.service.StartSession(r.Context(), req.StockInID, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, viewOf(sess))
}

// Get gets a session by ID
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.GetSession(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, viewOf(sess))
}

// Proceed moves the session one stage forward
func (h *SessionHandler) Proceed(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Proceed(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, viewOf(sess))
}

// Back moves the session one stage backward
func (h *SessionHandler) Back(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Back(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, viewOf(sess))
}

// Cancel abandons the session
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, viewOf(sess))
}

// AllocateBatch places count boxes at one location
func (h *SessionHandler) AllocateBatch(w http.ResponseWriter, r *http.Request) {
	var req AllocateBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, sess, err := h.service.AllocateBatch(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), allocation.Input{
		WarehouseID:    req.WarehouseID,
		LocationID:     req.LocationID,
		Count:          req.Count,
		QuantityPerBox: req.QuantityPerBox,
		Color:          req.Color,
		Size:           req.Size,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, map[string]interface{}{
		"batch":   batch,
		"session": viewOf(sess),
	})
}

// AllocateBoxes places boxes with individual destinations
func (h *SessionHandler) AllocateBoxes(w http.ResponseWriter, r *http.Request) {
	var req AllocateBoxesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	specs := make([]allocation.BoxSpec, len(req.Boxes))
	for i, b := range req.Boxes {
		specs[i] = allocation.BoxSpec{
			WarehouseID: b.WarehouseID,
			LocationID:  b.LocationID,
			Quantity:    b.Quantity,
			Color:       b.Color,
			Size:        b.Size,
		}
	}

	batches, sess, err := h.service.AllocateBoxes(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), specs)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, map[string]interface{}{
		"batches": batches,
		"session": viewOf(sess),
	})
}

// RemoveBatch discards a draft batch
func (h *SessionHandler) RemoveBatch(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.RemoveBatch(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, viewOf(sess))
}

// Preview returns the batch labels
func (h *SessionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	labels, err := h.service.Preview(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, labels)
}

// Label renders the PNG label of an issued barcode
func (h *SessionHandler) Label(w http.ResponseWriter, r *http.Request) {
	width, _ := strconv.Atoi(r.URL.Query().Get("width"))
	height, _ := strconv.Atoi(r.URL.Query().Get("height"))

	png, err := h.service.Label(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), chi.URLParam(r, "barcode"), width, height)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.PNG(w, png)
}

// Submit commits the finalized draft
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Submit(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"session": viewOf(out.Session),
		"result":  out.Result,
	})
}

// RequestStatus reports the status of a stock-in request
func (h *SessionHandler) RequestStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.RequestStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, snap)
}
