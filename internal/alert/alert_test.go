package alert

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeops/backend/internal/artifact"
	"github.com/wonny/tradeops/backend/internal/confirmation"
	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

var clock = time.Date(2026, 3, 2, 14, 5, 9, 0, time.UTC)

type memOutbox struct {
	items []interface{}
	err   error
}

func (o *memOutbox) Push(ctx context.Context, v interface{}) error {
	if o.err != nil {
		return o.err
	}
	o.items = append(o.items, v)
	return nil
}

func newEmitter(t *testing.T, outbox Outbox) (*Emitter, *artifact.Writer) {
	t.Helper()
	w := artifact.NewWriter(t.TempDir(), logger.NewNop())
	e := NewEmitter(w, outbox, logger.NewNop())
	e.now = func() time.Time { return clock }
	return e, w
}

func readAlert(t *testing.T, w *artifact.Writer, id string) Alert {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(w.Root(), artifact.AlertsDir, id+".json"))
	require.NoError(t, err)
	var a Alert
	require.NoError(t, json.Unmarshal(raw, &a))
	return a
}

func TestID(t *testing.T) {
	assert.Equal(t, "20260302T140509Z-RISKGUARD_BLOCKED-run-1", ID(clock, TypeRiskGuardBlocked, "run-1", "t-1"))
	assert.Equal(t, "20260302T140509Z-CONFIRMATION_MISSING-t-1", ID(clock, TypeConfirmationMissing, " ", "t-1"))
	assert.Equal(t, "20260302T140509Z-SCHEDULER_MISFIRE-none", ID(clock, TypeSchedulerMisfire, "", ""))
}

func TestNextAction(t *testing.T) {
	assert.Contains(t, NextAction(TypeConfirmationMissing, "", "t-9"), "ticket_id=t-9")
	assert.Contains(t, NextAction(TypeRiskGuardBlocked, "run-3", ""), "run_id=run-3")
	assert.NotEmpty(t, NextAction(Type("OTHER"), "", ""))
}

func TestEmit(t *testing.T) {
	outbox := &memOutbox{}
	e, w := newEmitter(t, outbox)

	a, err := e.Emit(context.Background(), Request{
		Type:          TypeDataQualityFail,
		Severity:      SeverityError,
		RunID:         "run-1",
		Summary:       "dq failed",
		ArtifactPaths: []string{"", "reports/dq.md"},
	})
	require.NoError(t, err)

	stored := readAlert(t, w, a.AlertID)
	assert.Equal(t, "2026-03-02T14:05:09Z", stored.CreatedUTC)
	assert.Equal(t, []string{"reports/dq.md"}, stored.ArtifactPaths)
	assert.Equal(t, map[string]any{}, stored.Details)
	assert.Len(t, outbox.items, 1)
}

func TestEmit_RejectsUnknownTypeAndSeverity(t *testing.T) {
	e, _ := newEmitter(t, nil)

	_, err := e.Emit(context.Background(), Request{Type: "NOPE", Severity: SeverityInfo})
	assert.Error(t, err)
	_, err = e.Emit(context.Background(), Request{Type: TypeSchedulerMisfire, Severity: "LOUD"})
	assert.Error(t, err)
}

func TestEmit_OutboxFailureIsNotFatal(t *testing.T) {
	e, w := newEmitter(t, &memOutbox{err: errors.New("redis down")})

	a, err := e.Emit(context.Background(), Request{Type: TypeSchedulerMisfire, Severity: SeverityError, Summary: "x"})
	require.NoError(t, err)
	assert.Equal(t, TypeSchedulerMisfire, readAlert(t, w, a.AlertID).Type)
}

func TestNotifyBlocked(t *testing.T) {
	outbox := &memOutbox{}
	e, _ := newEmitter(t, outbox)
	asof := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	decision := &contracts.Decision{
		RunID:        "run-1",
		AsOfDate:     &asof,
		DecisionType: contracts.DecisionNoTrade,
		Reasons:      []contracts.Reason{{Code: contracts.ReasonReconciliationRequired}},
	}
	checks := []contracts.RiskCheck{
		{Name: contracts.CheckDataQuality, Passed: true},
		{Name: contracts.CheckReconciliation, Passed: false},
		{Name: contracts.CheckLedgerReady, Passed: false},
	}

	require.NoError(t, e.NotifyBlocked(context.Background(), decision, checks, "runs/run-1/riskguard_blocked.json"))

	require.Len(t, outbox.items, 2)
	first := outbox.items[0].(*Alert)
	assert.Equal(t, TypeRiskGuardBlocked, first.Type)
	assert.Equal(t, SeverityWarn, first.Severity)
	assert.Equal(t, "RISKGUARD_BLOCKED run_id=run-1 asof_date=2026-03-02", first.Summary)

	second := outbox.items[1].(*Alert)
	assert.Equal(t, TypeReconciliationFail, second.Type)
	assert.Equal(t, SeverityError, second.Severity)
}

func TestNotifyConfirmationMissing(t *testing.T) {
	outbox := &memOutbox{}
	e, _ := newEmitter(t, outbox)

	err := e.NotifyConfirmationMissing(context.Background(), "run-2", &confirmation.DeadlineResult{
		PreviousTicketID: "t-1",
		PreviousRunID:    "run-1",
		EvaluatedAt:      clock,
	})
	require.NoError(t, err)

	require.Len(t, outbox.items, 1)
	a := outbox.items[0].(*Alert)
	assert.Equal(t, TypeConfirmationMissing, a.Type)
	assert.Equal(t, "t-1", a.TicketID)
	assert.Equal(t, "20260302T140509Z-CONFIRMATION_MISSING-run-2", a.AlertID)
}

func TestNotifyMisfire(t *testing.T) {
	outbox := &memOutbox{}
	e, _ := newEmitter(t, outbox)

	require.NoError(t, e.NotifyMisfire(context.Background(), "ops_run", errors.New("boom")))
	a := outbox.items[0].(*Alert)
	assert.Equal(t, "boom", a.Details["error"])
}
