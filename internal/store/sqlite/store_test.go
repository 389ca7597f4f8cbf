package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.SetClock(func() time.Time { return time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC) })
	return s
}

func day(s string) time.Time {
	d, err := contracts.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestStore_RunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	asof := day("2026-03-02")
	started := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	run := &contracts.RunContext{
		RunID:      "run-1",
		AsOfDate:   &asof,
		ConfigHash: "abc",
		Cadence:    "ops",
		Status:     contracts.RunStatusRunning,
		StartedAt:  started,
	}
	require.NoError(t, s.CreateRun(ctx, run))
	assert.Error(t, s.CreateRun(ctx, run), "duplicate run id")

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ConfigHash)
	assert.True(t, got.AsOfDate.Equal(asof))
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, s.FinishRun(ctx, "run-1", contracts.RunStatusPassed, "ok"))
	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.RunStatusPassed, got.Status)
	require.NotNil(t, got.FinishedAt)

	assert.ErrorIs(t, s.FinishRun(ctx, "nope", contracts.RunStatusFailed, ""), contracts.ErrNotFound)
	_, err = s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	require.NoError(t, s.CreateRun(ctx, &contracts.RunContext{
		RunID: "run-2", ConfigHash: "abc", Cadence: "0800",
		Status: contracts.RunStatusRunning, StartedAt: started.Add(time.Hour),
	}))

	latest, err := s.LatestRun(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)

	latest, err = s.LatestRun(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)
}

func TestStore_RiskChecksAndDecision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRiskChecks(ctx, []contracts.RiskCheck{
		{RunID: "r", Name: contracts.CheckLedgerReady, Passed: false, Detail: contracts.NewLedgerDetail(contracts.LedgerDetail{})},
		{RunID: "r", Name: contracts.CheckDataQuality, Passed: true, Detail: contracts.NewDataQualityDetail(contracts.DataQualityDetail{Found: true, Passed: true})},
		{RunID: "r", Name: contracts.CheckTradeBuilder, Passed: true},
	}))
	// 재실행 시 upsert
	require.NoError(t, s.UpsertRiskChecks(ctx, []contracts.RiskCheck{
		{RunID: "r", Name: contracts.CheckLedgerReady, Passed: true, Detail: contracts.NewLedgerDetail(contracts.LedgerDetail{CashMovements: 1})},
	}))

	checks, err := s.ListRiskChecks(ctx, "r")
	require.NoError(t, err)
	require.Len(t, checks, 3)
	assert.Equal(t, contracts.CheckDataQuality, checks[0].Name)
	assert.Equal(t, contracts.CheckLedgerReady, checks[1].Name)
	assert.Equal(t, contracts.CheckTradeBuilder, checks[2].Name)
	assert.True(t, checks[1].Passed)
	require.NotNil(t, checks[1].Detail.Ledger)
	assert.Equal(t, 1, checks[1].Detail.Ledger.CashMovements)

	asof := day("2026-03-02")
	decided := time.Date(2026, 3, 2, 14, 1, 0, 0, time.UTC)
	require.NoError(t, s.UpsertDecision(ctx, &contracts.Decision{
		RunID: "r", AsOfDate: &asof, DecisionType: contracts.DecisionNoTrade,
		Reasons:   []contracts.Reason{{Code: contracts.ReasonLedgerEmpty, Detail: "x"}},
		DecidedAt: decided,
	}))
	require.NoError(t, s.UpsertDecision(ctx, &contracts.Decision{
		RunID: "r", AsOfDate: &asof, Approved: true, DecisionType: contracts.DecisionTrade, DecidedAt: decided,
	}))

	d, err := s.GetDecision(ctx, "r")
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, contracts.DecisionTrade, d.DecisionType)
	assert.Empty(t, d.Reasons)
	assert.True(t, d.DecidedAt.Equal(decided))

	_, err = s.GetDecision(ctx, "missing")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestStore_ReplaceAllAndLink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	asof := day("2026-03-02")

	require.NoError(t, s.ReplaceTargets(ctx, "r", []contracts.PortfolioTarget{
		{Symbol: "VUSA", TargetWeight: 0.075, AsOfDate: asof, BaseCurrency: "GBP"},
		{Symbol: "AAA", TargetWeight: 0.05, TargetValue: decPtr("500"), AsOfDate: asof, BaseCurrency: "GBP"},
	}))
	require.NoError(t, s.ReplaceTargets(ctx, "r", []contracts.PortfolioTarget{
		{Symbol: "VUSA", TargetWeight: 0.07, AsOfDate: asof, BaseCurrency: "GBP"},
	}))
	targets, err := s.ListTargets(ctx, "r")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, 0.07, targets[0].TargetWeight)
	assert.Nil(t, targets[0].TargetValue)
	assert.True(t, targets[0].AsOfDate.Equal(asof))

	trades := []contracts.IntendedTrade{
		{Sequence: 1, Symbol: "BBB", Side: contracts.SideSell, Units: decPtr("2"), NotionalBase: dec("200"),
			OrderType: "MKT", ReferencePrice: dec("100"), MaxSlippageBps: 50, Rationale: "trim"},
		{Sequence: 2, Symbol: "AAA", Side: contracts.SideBuy, Units: decPtr("1.5"), NotionalBase: dec("150.25"),
			OrderType: "LMT", LimitPrice: decPtr("100.5"), ReferencePrice: dec("100.1667"), MaxSlippageBps: 50},
	}
	require.NoError(t, s.ReplaceIntendedTrades(ctx, "r", trades))

	got, err := s.ListIntendedTrades(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, contracts.SideSell, got[0].Side)
	assert.Equal(t, "150.25", got[1].NotionalBase.String())
	assert.Equal(t, "100.5", got[1].LimitPrice.String())
	assert.Nil(t, got[0].LimitPrice)
	assert.Empty(t, got[0].TicketID)

	require.NoError(t, s.LinkTradesToTicket(ctx, "r", "t-1"))
	n, err := s.CountIntendedByTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.ReplaceIntendedTrades(ctx, "r", nil))
	got, err = s.ListIntendedTrades(ctx, "r")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_TicketUpsertKeepsIdentity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := time.Date(2026, 3, 2, 14, 2, 0, 0, time.UTC)
	ticket := &contracts.Ticket{
		TicketID: "t-1", RunID: "r", DecisionType: contracts.DecisionTrade,
		Status: contracts.TicketStatusRendered, MaterialHash: "h1",
		Rendered: json.RawMessage(`{"a":1}`), CreatedAt: first, UpdatedAt: first,
	}
	require.NoError(t, s.UpsertTicket(ctx, ticket))
	require.NoError(t, s.UpdateTicketStatus(ctx, "t-1", contracts.TicketStatusConfirmed))

	again := &contracts.Ticket{
		TicketID: "t-other", RunID: "r", DecisionType: contracts.DecisionTrade,
		Status: contracts.TicketStatusRendered, MaterialHash: "h2",
		CreatedAt: first.Add(time.Hour), UpdatedAt: first.Add(time.Hour),
	}
	require.NoError(t, s.UpsertTicket(ctx, again))
	assert.Equal(t, "t-1", again.TicketID)
	assert.True(t, again.CreatedAt.Equal(first))
	assert.Equal(t, contracts.TicketStatusConfirmed, again.Status)

	got, err := s.GetTicketByRun(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.TicketID)
	assert.Equal(t, "h2", got.MaterialHash)
	assert.Nil(t, got.Rendered)

	_, err = s.GetTicket(ctx, "t-other")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	assert.ErrorIs(t, s.UpdateTicketStatus(ctx, "t-other", contracts.TicketStatusConfirmed), contracts.ErrNotFound)

	require.NoError(t, s.UpsertTicket(ctx, &contracts.Ticket{
		TicketID: "t-2", RunID: "r2", DecisionType: contracts.DecisionNoTrade,
		Status: contracts.TicketStatusRendered, CreatedAt: first.Add(2 * time.Hour), UpdatedAt: first,
	}))

	latest, err := s.LatestTradeTicket(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "t-1", latest.TicketID)

	_, err = s.LatestTradeTicket(ctx, "r")
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	all, err := s.ListTickets(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t-2", all[0].TicketID)

	one, err := s.ListTickets(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestStore_LatestTradeTicketSameSecond(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 2, 14, 2, 0, 0, time.UTC)

	for _, id := range []string{"t-b", "t-c", "t-a"} {
		require.NoError(t, s.UpsertTicket(ctx, &contracts.Ticket{
			TicketID: id, RunID: "r-" + id, DecisionType: contracts.DecisionTrade,
			Status: contracts.TicketStatusRendered, CreatedAt: created, UpdatedAt: created,
		}))
	}

	latest, err := s.LatestTradeTicket(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "t-c", latest.TicketID)

	latest, err = s.LatestTradeTicket(ctx, "r-t-c")
	require.NoError(t, err)
	assert.Equal(t, "t-b", latest.TicketID)

	all, err := s.ListTickets(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t-c", all[0].TicketID)
	assert.Equal(t, "t-a", all[2].TicketID)
}

func TestStore_ConfirmationsFillsAndLedger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	filled := time.Date(2026, 3, 2, 15, 1, 0, 0, time.UTC)

	require.NoError(t, s.AddCashMovement(ctx, dec("1000"), filled.Add(-time.Hour), "deposit"))

	fills := []contracts.ConfirmedFill{
		{Sequence: 1, Symbol: "AAA", Side: contracts.SideBuy, ExecutedStatus: contracts.ExecutedDone,
			Units: decPtr("3"), FillPrice: decPtr("100"), ExecutedValueBase: decPtr("300"), FilledAt: &filled},
		{Sequence: 2, Symbol: "BBB", Side: contracts.SideBuy, ExecutedStatus: contracts.ExecutedSkipped},
	}
	require.NoError(t, s.SaveConfirmation(ctx, &contracts.Confirmation{
		ConfirmationID: "c-1", TicketID: "t-1", Type: contracts.ConfirmationFills,
		SubmittedBy: "op", FillsCount: 2, CreatedAt: filled,
	}, fills))

	// 같은 sequence 재제출은 덮어쓰기
	require.NoError(t, s.SaveConfirmation(ctx, &contracts.Confirmation{
		ConfirmationID: "c-2", TicketID: "t-1", Type: contracts.ConfirmationFills,
		SubmittedBy: "op", FillsCount: 1, CreatedAt: filled,
	}, []contracts.ConfirmedFill{
		{Sequence: 1, Symbol: "AAA", Side: contracts.SideBuy, ExecutedStatus: contracts.ExecutedPartial,
			Units: decPtr("2"), FillPrice: decPtr("100"), ExecutedValueBase: decPtr("200"), FilledAt: &filled},
	}))

	got, err := s.ListFills(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, contracts.ExecutedPartial, got[0].ExecutedStatus)
	assert.Equal(t, "2", got[0].Units.String())
	require.NotNil(t, got[0].FilledAt)
	assert.True(t, got[0].FilledAt.Equal(filled))
	assert.Nil(t, got[1].Units)

	n, err := s.CountFills(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.CountConfirmations(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	activity, err := s.LedgerActivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, contracts.LedgerActivity{CashMovements: 1, Fills: 2}, activity)

	pos, err := s.LedgerPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, contracts.PositionSourceLedger, pos.Source)
	assert.Equal(t, "800", pos.Cash.String())
	require.Len(t, pos.Holdings, 1)
	assert.Equal(t, "2", pos.Holdings["AAA"].String())

	require.NoError(t, s.AppendAudit(ctx, contracts.AuditEvent{
		Actor: "op", Action: "CONFIRMATION_SUBMITTED", ObjectType: "ticket", ObjectID: "t-1",
		Details: map[string]any{"fills": float64(1)},
	}))
	events, err := s.AuditEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, float64(1), events[0].Details["fills"])
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestStore_Facts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	asof := day("2026-03-02")

	// 데이터 품질 보고서가 없으면 런의 기준일 사용
	require.NoError(t, s.CreateRun(ctx, &contracts.RunContext{
		RunID: "r", AsOfDate: &asof, ConfigHash: "h", Cadence: "ops",
		Status: contracts.RunStatusRunning, StartedAt: time.Now().UTC(),
	}))
	resolved, err := s.ResolveAsOf(ctx, "r")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.True(t, resolved.Equal(asof))

	dq, err := s.DataQuality(ctx, "r")
	require.NoError(t, err)
	assert.False(t, dq.Found)

	dqAsOf := day("2026-02-27")
	require.NoError(t, s.RecordDataQuality(ctx, "r", &dqAsOf, true, time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)))
	dq, err = s.DataQuality(ctx, "r")
	require.NoError(t, err)
	assert.True(t, dq.Found)
	assert.True(t, dq.Passed)
	resolved, err = s.ResolveAsOf(ctx, "r")
	require.NoError(t, err)
	assert.True(t, resolved.Equal(dqAsOf))

	none, err := s.ResolveAsOf(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.AddReconciliation(ctx, ReconciliationInput{
		SnapshotID: "s-old", SnapshotDate: day("2026-02-25"), Cash: dec("50"),
		Passed: true, EvaluatedAt: time.Date(2026, 2, 25, 18, 0, 0, 0, time.UTC), ReportPath: "old.json",
	}))
	require.NoError(t, s.AddReconciliation(ctx, ReconciliationInput{
		SnapshotID: "s-new", SnapshotDate: day("2026-03-01"), Cash: dec("9250"),
		Positions: map[string]decimal.Decimal{"AAA": dec("7.5")},
		Passed:    true, EvaluatedAt: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC), ReportPath: "new.json",
	}))

	fact, err := s.Reconciliation(ctx, asof, 0)
	require.NoError(t, err)
	assert.Nil(t, fact.InWindow)
	require.NotNil(t, fact.LatestPass)
	assert.Equal(t, "s-new", fact.LatestPass.SnapshotID)

	fact, err = s.Reconciliation(ctx, asof, 1)
	require.NoError(t, err)
	require.NotNil(t, fact.InWindow)
	assert.Equal(t, "new.json", fact.InWindow.ReportPath)

	snap, err := s.ReconciledPositions(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, contracts.PositionSourceReconciliation, snap.Source)
	assert.Equal(t, "9250", snap.Cash.String())
	assert.Equal(t, "7.5", snap.Holdings["AAA"].String())

	require.NoError(t, s.AddReconciliation(ctx, ReconciliationInput{
		SnapshotID: "s-fail", SnapshotDate: day("2026-03-02"), Cash: dec("1"),
		Passed: false, EvaluatedAt: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
	}))
	snap, err = s.ReconciledPositions(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap, "latest reconciliation failed")

	require.NoError(t, s.UpsertUniverseMember(ctx, contracts.UniverseMember{Symbol: "VUSA", Enabled: true, Notes: "ETORO_VERIFIED"}))
	require.NoError(t, s.UpsertUniverseMember(ctx, contracts.UniverseMember{Symbol: "IDX", Benchmark: true}))
	members, err := s.Universe(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "IDX", members[0].Symbol)
	assert.True(t, members[0].Benchmark)
	assert.False(t, members[0].Enabled)
	assert.Equal(t, "ETORO_VERIFIED", members[1].Notes)

	require.NoError(t, s.UpsertClosePrice(ctx, asof, "VUSA", dec("99.5"), "stooq"))
	require.NoError(t, s.UpsertClosePrice(ctx, day("2026-03-01"), "AAA", dec("10"), "stooq"))
	prices, err := s.ClosePrices(ctx, asof, []string{"VUSA", "AAA"})
	require.NoError(t, err)
	assert.Len(t, prices, 1)
	assert.Equal(t, "99.5", prices["VUSA"].String())

	empty, err := s.ClosePrices(ctx, asof, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	rank := 1
	require.NoError(t, s.ReplaceSignals(ctx, "r", []contracts.Signal{
		{Symbol: "VUSA", Score: 0.9, Rank: &rank},
		{Symbol: "AAA", Score: 0.1},
	}))
	signals, err := s.Signals(ctx, "r")
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, "AAA", signals[0].Symbol)
	assert.Nil(t, signals[0].Rank)
	require.NotNil(t, signals[1].Rank)
	assert.Equal(t, 1, *signals[1].Rank)
}

// ============================================================================
// sqlmock: error and transaction paths
// ============================================================================

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := New(context.Background(), db)
	require.NoError(t, err)
	return s, mock
}

func TestNew_MigrateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("read-only"))
	_, err = New(context.Background(), db)
	assert.ErrorContains(t, err, "failed to migrate sqlite")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTargets_RollsBackOnInsertError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM portfolio_targets").WithArgs("r").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO portfolio_targets").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.ReplaceTargets(context.Background(), "r", []contracts.PortfolioTarget{
		{Symbol: "VUSA", TargetWeight: 0.05, AsOfDate: day("2026-03-02"), BaseCurrency: "GBP"},
	})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceIntendedTrades_CommitError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM ledger_trades_intended").WithArgs("r").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(errors.New("busy"))

	err := s.ReplaceIntendedTrades(context.Background(), "r", nil)
	assert.ErrorContains(t, err, "failed to commit transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun_NoRowsIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT run_id").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDataQuality_QueryError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM data_quality_reports").WithArgs("r").WillReturnError(errors.New("locked"))

	_, err := s.DataQuality(context.Background(), "r")
	assert.ErrorContains(t, err, "failed to query data quality")
	assert.NoError(t, mock.ExpectationsWereMet())
}
