package contracts

import (
	"encoding/json"
	"time"
)

// TicketStatus tracks a ticket after rendering
type TicketStatus string

const (
	TicketStatusRendered  TicketStatus = "RENDERED"
	TicketStatusConfirmed TicketStatus = "CONFIRMED"
)

// Ticket is the one idempotent artifact of a run's decision
// ⭐ 불변식: TicketID, CreatedAt 은 재렌더링 시에도 변하지 않음
type Ticket struct {
	TicketID     string          `json:"ticket_id"`
	RunID        string          `json:"run_id"`
	DecisionType DecisionType    `json:"decision_type"`
	Status       TicketStatus    `json:"status"`
	MaterialHash string          `json:"material_hash"`
	Rendered     json.RawMessage `json:"rendered,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
