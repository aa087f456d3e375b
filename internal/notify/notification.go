// Package notify is the in-process fanout of domain change notifications.
// Delivery is at-most-once per live subscriber with no replay.
package notify

import (
	"encoding/json"
	"time"
)

// Type names a notification kind.
type Type string

const (
	TypeConnected     Type = "connected"
	TypeSyncAck       Type = "sync.ack"
	TypeStatusChanged Type = "application.status_changed"
	TypeBatchProgress Type = "batch.progress"
	TypeScanProgress  Type = "scan.progress"
)

// Scope tells observers which aggregate a notification concerns.
type Scope string

const (
	ScopeApplication Scope = "application"
	ScopeBatch       Scope = "batch"
	ScopeSystem      Scope = "system"
)

type Notification struct {
	ID            string          `json:"eventId"`
	Type          Type            `json:"type"`
	ApplicationID string          `json:"applicationId,omitempty"`
	BatchID       string          `json:"batchId,omitempty"`
	Scope         Scope           `json:"scope"`
	Data          json.RawMessage `json:"data,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Publisher is the write side of the bus as seen by services.
type Publisher interface {
	Publish(n Notification)
}

// Filter narrows a subscription. Empty fields match everything.
type Filter struct {
	ApplicationID string
	BatchID       string
}

func (f Filter) matches(n Notification) bool {
	if n.Type == TypeConnected {
		return true
	}
	if f.ApplicationID != "" && n.ApplicationID != f.ApplicationID {
		return false
	}
	if f.BatchID != "" && n.BatchID != f.BatchID {
		return false
	}
	return true
}

// Data marshals v for the Data field. Values that cannot be marshaled yield nil.
func Data(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
