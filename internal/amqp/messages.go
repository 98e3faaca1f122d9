package amqp

import (
	"encoding/json"
	"time"
)

// EventLedgerChanged is the only event type published today.
const EventLedgerChanged = "ledger.changed"

// LedgerEvent announces that the ledger was mutated. It carries no ledger
// data: consumers read the current state themselves.
type LedgerEvent struct {
	Type      string    `json:"type"`
	Operation string    `json:"operation"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(operation string, count int) *LedgerEvent {
	return &LedgerEvent{
		Type:      EventLedgerChanged,
		Operation: operation,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
