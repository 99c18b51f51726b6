package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"moneyflow/internal/core"
)

// EventType names a ledger change.
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionDeleted EventType = "transaction.deleted"
)

// LedgerEvent is a lightweight notification about a ledger entry. It
// carries only identifiers; consumers read the entry from the database.
type LedgerEvent struct {
	EventID       string    `json:"event_id"`
	Event         EventType `json:"event"`
	TransactionID int64     `json:"transaction_id"`
	OwnerID       int64     `json:"owner_id"`
	RuleID        *int64    `json:"rule_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event for t with a fresh event id.
func NewLedgerEvent(event EventType, t core.Transaction) *LedgerEvent {
	return &LedgerEvent{
		EventID:       uuid.NewString(),
		Event:         event,
		TransactionID: t.ID,
		OwnerID:       t.OwnerID,
		RuleID:        t.RuleID,
		Timestamp:     time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and checks a message body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Event {
	case EventTransactionCreated, EventTransactionDeleted:
	default:
		return nil, fmt.Errorf("unknown ledger event %q", msg.Event)
	}
	if msg.TransactionID <= 0 {
		return nil, fmt.Errorf("ledger event without transaction id")
	}
	return &msg, nil
}
