package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Stock-in request lifecycle
	EventStockInStatusChanged = "stockin.request.status_changed"
	EventStockInCommitted     = "stockin.request.committed"
	EventStockInFallback      = "stockin.commit.fallback"
	EventStockInProgress      = "stockin.commit.progress"
)

// Exchange names
const (
	ExchangeStockInEvents = "stockin.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Stock-in Events

// StockInStatusChangedEvent is published on every status transition of a stock-in request
type StockInStatusChangedEvent struct {
	StockInID string `json:"stock_in_id"`
	RunID     string `json:"run_id,omitempty"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason,omitempty"`
	ChangedBy string `json:"changed_by,omitempty"`
}

// StockInCommittedEvent is published once the batches of a submission are durable
type StockInCommittedEvent struct {
	StockInID string   `json:"stock_in_id"`
	RunID     string   `json:"run_id"`
	Strategy  string   `json:"strategy"`
	BatchIDs  []string `json:"batch_ids"`
	BoxCount  int      `json:"box_count"`
	Replayed  bool     `json:"replayed"`
}

// StockInFallbackEvent is published when the remote commit failed and the local path takes over
type StockInFallbackEvent struct {
	StockInID string `json:"stock_in_id"`
	RunID     string `json:"run_id"`
	Reason    string `json:"reason"`
}

// StockInProgressEvent carries the informational batch progress of a running commit
type StockInProgressEvent struct {
	StockInID string `json:"stock_in_id"`
	RunID     string `json:"run_id"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
