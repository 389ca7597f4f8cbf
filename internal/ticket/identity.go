package ticket

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// Namespace is the UUIDv5 namespace of ticket identities
// ⭐ SSOT: 변경 시 기존 티켓과 ID 불일치 발생
var Namespace = uuid.MustParse("7d6dbdd0-3a1d-4ad9-a119-09b73a9a8db1")

// NewTicketID derives the deterministic id of a run's first ticket
func NewTicketID(runID string, decisionType contracts.DecisionType) string {
	name := fmt.Sprintf("%s:%s", runID, decisionType)
	return uuid.NewSHA1(Namespace, []byte(name)).String()
}
