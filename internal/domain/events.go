package domain

import (
	"time"
)

type EventType string

const (
	// Cycle lifecycle. One event pair (or Started+Failed) per scheduler cycle.
	CycleStarted   EventType = "CycleStarted"
	CycleCompleted EventType = "CycleCompleted"
	CycleFailed    EventType = "CycleFailed" // catalog search failed, cycle abandoned

	// Per-dataset outcomes within a cycle.
	DatasetScanned    EventType = "DatasetScanned"
	DatasetScanFailed EventType = "DatasetScanFailed"

	// Notification delivery outcomes.
	NotificationSent   EventType = "NotificationSent"
	NotificationFailed EventType = "NotificationFailed"
)

// Failure reasons recorded in DatasetScanFailed events.
const (
	FailureLocationMissing = "location_missing"
	FailureChecksum        = "checksum"
	FailurePatch           = "patch"
)

// Event is one journal entry. AggregateID is the dataset's catalog path for
// dataset-scoped events and the cycle UUID for cycle-scoped events.
type Event struct {
	ID            int64          `json:"id"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	EventType     EventType      `json:"event_type"`
	EventData     map[string]any `json:"event_data"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Aggregate types used in journal events.
const (
	AggregateCycle   = "cycle"
	AggregateDataset = "dataset"
)

// GetString safely extracts a string field from EventData.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetStringOr extracts a string field or returns the default value.
func (e *Event) GetStringOr(key, defaultVal string) string {
	if v, ok := e.GetString(key); ok {
		return v
	}
	return defaultVal
}

// GetInt64 safely extracts an int64 field from EventData.
// Handles both int64 and float64 (JSON unmarshaling produces float64).
func (e *Event) GetInt64(key string) (int64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetInt64Or extracts an int64 field or returns the default value.
func (e *Event) GetInt64Or(key string, defaultVal int64) int64 {
	if v, ok := e.GetInt64(key); ok {
		return v
	}
	return defaultVal
}

// DatasetFailureData is the typed payload of DatasetScanFailed events.
type DatasetFailureData struct {
	CycleID string `json:"cycle_id"`
	Reason  string `json:"reason"`
	Error   string `json:"error,omitempty"`
	Site    string `json:"site,omitempty"`
}

// ParseDatasetFailureData extracts typed failure data from an event.
func (e *Event) ParseDatasetFailureData() (DatasetFailureData, bool) {
	reason, ok := e.GetString("reason")
	if !ok {
		return DatasetFailureData{}, false
	}
	return DatasetFailureData{
		CycleID: e.GetStringOr("cycle_id", ""),
		Reason:  reason,
		Error:   e.GetStringOr("error", ""),
		Site:    e.GetStringOr("site", ""),
	}, true
}
