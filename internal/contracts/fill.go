package contracts

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExecutedStatus is the operator-reported state of a fill
type ExecutedStatus string

const (
	ExecutedDone    ExecutedStatus = "DONE"
	ExecutedSkipped ExecutedStatus = "SKIPPED"
	ExecutedFailed  ExecutedStatus = "FAILED"
	ExecutedPartial ExecutedStatus = "PARTIAL"
)

// ParseExecutedStatus normalizes a status string (case-insensitive)
func ParseExecutedStatus(s string) (ExecutedStatus, bool) {
	st := ExecutedStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case ExecutedDone, ExecutedSkipped, ExecutedFailed, ExecutedPartial:
		return st, true
	}
	return "", false
}

// Executed reports whether units actually changed hands
func (s ExecutedStatus) Executed() bool {
	return s == ExecutedDone || s == ExecutedPartial
}

// ConfirmedFill is one operator-submitted execution record, keyed by (ticket, sequence)
type ConfirmedFill struct {
	TicketID          string           `json:"ticket_id"`
	Sequence          int              `json:"sequence"`
	Symbol            string           `json:"internal_symbol"`
	Side              Side             `json:"side"`
	ExecutedStatus    ExecutedStatus   `json:"executed_status"`
	Units             *decimal.Decimal `json:"units,omitempty"`
	FillPrice         *decimal.Decimal `json:"fill_price,omitempty"`
	ExecutedValueBase *decimal.Decimal `json:"executed_value_base,omitempty"`
	FilledAt          *time.Time       `json:"filled_at,omitempty"`
	Notes             string           `json:"notes,omitempty"`
}

// ConfirmationType distinguishes a plain acknowledgment from a fills report
type ConfirmationType string

const (
	ConfirmationAckNoTrade ConfirmationType = "ACK_NO_TRADE"
	ConfirmationFills      ConfirmationType = "FILLS"
)

// Confirmation is one submission against a ticket
type Confirmation struct {
	ConfirmationID string           `json:"confirmation_id"`
	TicketID       string           `json:"ticket_id"`
	Type           ConfirmationType `json:"confirmation_type"`
	SubmittedBy    string           `json:"submitted_by"`
	Notes          string           `json:"notes,omitempty"`
	FillsCount     int              `json:"fills_count"`
	CreatedAt      time.Time        `json:"created_at"`
}

// AuditEvent is an append-only operator/audit record
type AuditEvent struct {
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	ObjectType string         `json:"object_type"`
	ObjectID   string         `json:"object_id"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
