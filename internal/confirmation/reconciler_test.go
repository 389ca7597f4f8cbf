package confirmation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeops/backend/internal/artifact"
	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/internal/store/memory"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

type recordingNotifier struct {
	runIDs  []string
	results []*DeadlineResult
}

func (n *recordingNotifier) NotifyConfirmationMissing(ctx context.Context, runID string, result *DeadlineResult) error {
	n.runIDs = append(n.runIDs, runID)
	n.results = append(n.results, result)
	return nil
}

func seedTicket(t *testing.T, s *memory.Store, ticketID, runID string, decision contracts.DecisionType, intended int, created time.Time) {
	t.Helper()
	ctx := context.Background()

	trades := make([]contracts.IntendedTrade, 0, intended)
	for i := 1; i <= intended; i++ {
		trades = append(trades, contracts.IntendedTrade{RunID: runID, Sequence: i, Symbol: "S", Side: contracts.SideBuy})
	}
	require.NoError(t, s.ReplaceIntendedTrades(ctx, runID, trades))
	require.NoError(t, s.UpsertTicket(ctx, &contracts.Ticket{
		TicketID:     ticketID,
		RunID:        runID,
		DecisionType: decision,
		Status:       contracts.TicketStatusRendered,
		CreatedAt:    created,
	}))
	require.NoError(t, s.LinkTradesToTicket(ctx, runID, ticketID))
}

func newReconciler(t *testing.T, s *memory.Store, n DeadlineNotifier) *Reconciler {
	t.Helper()
	r := NewReconciler(s, artifact.NewWriter(t.TempDir(), logger.NewNop()), n, logger.NewNop())
	r.now = func() time.Time { return time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC) }
	return r
}

func TestSubmit_Fills(t *testing.T) {
	s := memory.New()
	seedTicket(t, s, "t-1", "run-1", contracts.DecisionTrade, 2, time.Now())
	r := newReconciler(t, s, nil)

	receipt, err := r.Submit(context.Background(), Submission{
		RunID: "run-1",
		Type:  contracts.ConfirmationFills,
		Fills: []FillInput{
			{Sequence: 2, Symbol: "S", Side: "BUY", ExecutedStatus: "SKIPPED"},
			{Sequence: 1, Symbol: "S", Side: "BUY", ExecutedStatus: "DONE", Units: d("1"), FillPrice: d("5"), FilledAt: "2026-03-02T15:00:00Z"},
		},
		SubmittedBy: "ops",
	})
	require.NoError(t, err)

	assert.Equal(t, "t-1", receipt.TicketID)
	assert.Equal(t, 2, receipt.FillsCount)
	assert.FileExists(t, receipt.ArtifactPath)

	fills, err := s.ListFills(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, 1, fills[0].Sequence)

	ticket, err := s.GetTicket(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.TicketStatusConfirmed, ticket.Status)

	events := s.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, AuditActionSubmitted, events[0].Action)
	assert.Equal(t, "ops", events[0].Actor)
	assert.Equal(t, receipt.ConfirmationID, events[0].ObjectID)

	c, err := CheckCompleteness(context.Background(), s, "run-2")
	require.NoError(t, err)
	assert.True(t, c.Complete())
	assert.Equal(t, 2, c.Intended)
	assert.Equal(t, 2, c.Fills)
}

func TestSubmit_AckNoTrade(t *testing.T) {
	s := memory.New()
	seedTicket(t, s, "t-1", "run-1", contracts.DecisionNoTrade, 0, time.Now())
	r := newReconciler(t, s, nil)

	receipt, err := r.Submit(context.Background(), Submission{TicketID: "t-1", Type: contracts.ConfirmationAckNoTrade})
	require.NoError(t, err)
	assert.Equal(t, 0, receipt.FillsCount)

	confs := s.Confirmations()
	require.Len(t, confs, 1)
	assert.Equal(t, "operator", confs[0].SubmittedBy)
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		decision contracts.DecisionType
		sub      Submission
		target   error
	}{
		{
			name:     "ack on trade ticket",
			decision: contracts.DecisionTrade,
			sub:      Submission{TicketID: "t-1", Type: contracts.ConfirmationAckNoTrade},
			target:   ErrTicketTypeMismatch,
		},
		{
			name:     "fills on no-trade ticket",
			decision: contracts.DecisionNoTrade,
			sub: Submission{TicketID: "t-1", Type: contracts.ConfirmationFills, Fills: []FillInput{
				{Sequence: 1, Symbol: "S", Side: "BUY", ExecutedStatus: "SKIPPED"},
			}},
			target: ErrTicketTypeMismatch,
		},
		{
			name:     "unknown ticket",
			decision: contracts.DecisionTrade,
			sub:      Submission{TicketID: "nope", Type: contracts.ConfirmationFills},
			target:   ErrTicketNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			seedTicket(t, s, "t-1", "run-1", tt.decision, 1, time.Now())
			r := newReconciler(t, s, nil)

			_, err := r.Submit(context.Background(), tt.sub)
			require.ErrorIs(t, err, tt.target)
			assert.Empty(t, s.Confirmations())
			assert.Empty(t, s.AuditEvents())
		})
	}
}

func TestSubmit_InvalidFillWritesNothing(t *testing.T) {
	s := memory.New()
	seedTicket(t, s, "t-1", "run-1", contracts.DecisionTrade, 1, time.Now())
	r := newReconciler(t, s, nil)

	_, err := r.Submit(context.Background(), Submission{
		TicketID: "t-1",
		Type:     contracts.ConfirmationFills,
		Fills:    []FillInput{{Sequence: 1, Symbol: "S", Side: "BUY", ExecutedStatus: "DONE", Units: d("-1"), FilledAt: "2026-03-02T15:00:00Z"}},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "fills[0].units", verr.Field)

	n, err := s.CountFills(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, s.Confirmations())
}

func TestSubmit_AllowNonTradeOverride(t *testing.T) {
	s := memory.New()
	seedTicket(t, s, "t-1", "run-1", contracts.DecisionNoTrade, 0, time.Now())
	r := newReconciler(t, s, nil)

	_, err := r.Submit(context.Background(), Submission{
		TicketID:      "t-1",
		Type:          contracts.ConfirmationFills,
		AllowNonTrade: true,
		Fills:         []FillInput{{Sequence: 1, Symbol: "S", Side: "BUY", ExecutedStatus: "FAILED"}},
	})
	require.NoError(t, err)
}

func TestCheckCompleteness(t *testing.T) {
	s := memory.New()

	c, err := CheckCompleteness(context.Background(), s, "")
	require.NoError(t, err)
	assert.False(t, c.Found)
	assert.True(t, c.Complete())

	seedTicket(t, s, "t-1", "run-1", contracts.DecisionTrade, 3, time.Now())
	c, err = CheckCompleteness(context.Background(), s, "run-2")
	require.NoError(t, err)
	assert.True(t, c.Found)
	assert.False(t, c.Complete())

	// 자기 run 의 티켓은 제외
	c, err = CheckCompleteness(context.Background(), s, "run-1")
	require.NoError(t, err)
	assert.False(t, c.Found)
}

func TestDeadline(t *testing.T) {
	t.Run("no previous ticket", func(t *testing.T) {
		s := memory.New()
		n := &recordingNotifier{}
		res, err := newReconciler(t, s, n).Deadline(context.Background(), "")
		require.NoError(t, err)
		assert.True(t, res.Passed)
		assert.Equal(t, DeadlineNoPreviousTicket, res.Status)
		assert.Empty(t, n.runIDs)
		assert.Empty(t, res.ArtifactPath)
	})

	t.Run("missing confirmation alerts and writes run artifact", func(t *testing.T) {
		s := memory.New()
		seedTicket(t, s, "t-1", "run-1", contracts.DecisionTrade, 1, time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC))
		n := &recordingNotifier{}

		res, err := newReconciler(t, s, n).Deadline(context.Background(), "run-2")
		require.NoError(t, err)
		assert.False(t, res.Passed)
		assert.Equal(t, DeadlineMissing, res.Status)
		assert.Equal(t, "t-1", res.PreviousTicketID)
		assert.Equal(t, []string{"run-2"}, n.runIDs)

		// 결정 체크 테이블에는 남기지 않음
		checks, err := s.ListRiskChecks(context.Background(), "run-2")
		require.NoError(t, err)
		assert.Empty(t, checks)

		require.NotEmpty(t, res.ArtifactPath)
		assert.Equal(t, DeadlineArtifact, filepath.Base(res.ArtifactPath))
		data, err := os.ReadFile(res.ArtifactPath)
		require.NoError(t, err)
		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, false, doc["passed"])
		assert.Equal(t, DeadlineMissing, doc["status"])
		assert.Equal(t, "t-1", doc["previous_ticket_id"])
	})

	t.Run("acknowledged ticket passes", func(t *testing.T) {
		s := memory.New()
		seedTicket(t, s, "t-1", "run-1", contracts.DecisionTrade, 1, time.Now())
		r := newReconciler(t, s, nil)
		_, err := r.Submit(context.Background(), Submission{
			TicketID: "t-1",
			Type:     contracts.ConfirmationFills,
			Fills:    []FillInput{{Sequence: 1, Symbol: "S", Side: "BUY", ExecutedStatus: "SKIPPED"}},
		})
		require.NoError(t, err)

		res, err := r.Deadline(context.Background(), "")
		require.NoError(t, err)
		assert.True(t, res.Passed)
		assert.Equal(t, 1, res.ConfirmationsCount)
	})
}
