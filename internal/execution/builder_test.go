package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/internal/store/memory"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

type recordingWriter struct {
	files map[string]any
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{files: make(map[string]any)}
}

func (w *recordingWriter) WriteRunJSON(runID, name string, v any) (string, error) {
	path := "runs/" + runID + "/" + name
	w.files[path] = v
	return path, nil
}

var asof = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func seedTargets(t *testing.T, s *memory.Store, day time.Time) {
	t.Helper()
	require.NoError(t, s.ReplaceTargets(context.Background(), "run-1", []contracts.PortfolioTarget{
		{RunID: "run-1", Symbol: "AAA", TargetWeight: 0.075, AsOfDate: day},
		{RunID: "run-1", Symbol: "BBB", TargetWeight: 0.075, AsOfDate: day},
	}))
}

func newBuilder(s *memory.Store, w ArtifactWriter, enabled bool) *TradeBuilder {
	cfg := testConfig()
	cfg.Enabled = enabled
	return NewTradeBuilder(cfg, s, s, s, w, logger.NewNop())
}

func TestBuild_Disabled(t *testing.T) {
	s := memory.New()
	w := newRecordingWriter()
	seedTargets(t, s, asof)

	res, err := newBuilder(s, w, false).Build(context.Background(), "run-1", &asof)
	require.NoError(t, err)
	assert.Equal(t, contracts.SizingDisabled, res.Outcome)
	assert.False(t, res.OK())
	assert.Empty(t, res.Trades)
	assert.Equal(t, "runs/run-1/trades_intended.json", res.ArtifactPath)
	assert.Contains(t, w.files, res.ArtifactPath)
}

func TestBuild_Preconditions(t *testing.T) {
	other := asof.AddDate(0, 0, -1)

	tests := []struct {
		name    string
		setup   func(s *memory.Store)
		asof    *time.Time
		want    contracts.SizingOutcome
		missing []string
	}{
		{
			name:  "targets missing",
			setup: func(s *memory.Store) {},
			asof:  &asof,
			want:  contracts.SizingTargetsMissing,
		},
		{
			name:  "targets from another day",
			setup: func(s *memory.Store) { seedTargets(t, s, other) },
			asof:  &asof,
			want:  contracts.SizingTargetsAsOfMismatch,
		},
		{
			name:  "no as-of date",
			setup: func(s *memory.Store) { seedTargets(t, s, asof) },
			asof:  nil,
			want:  contracts.SizingTargetsAsOfMismatch,
		},
		{
			name: "prices missing",
			setup: func(s *memory.Store) {
				seedTargets(t, s, asof)
				s.SetLedger(decimal.NewFromInt(1000), map[string]decimal.Decimal{"CCC": decimal.NewFromInt(1)}, 1)
				s.SetClosePrice(asof, "BBB", decimal.NewFromInt(10))
			},
			asof:    &asof,
			want:    contracts.SizingPricesMissing,
			missing: []string{"AAA", "CCC"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			tt.setup(s)
			w := newRecordingWriter()

			res, err := newBuilder(s, w, true).Build(context.Background(), "run-1", tt.asof)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
			assert.Empty(t, res.Trades)
			assert.Equal(t, tt.missing, res.MissingPrices)
			assert.Len(t, w.files, 1, "diagnostic artifact is written for every outcome")
		})
	}
}

func TestBuild_LedgerPositions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedTargets(t, s, asof)
	s.SetLedger(decimal.NewFromInt(10000), nil, 1)
	s.SetClosePrice(asof, "AAA", decimal.NewFromInt(100))
	s.SetClosePrice(asof, "BBB", decimal.NewFromInt(50))

	res, err := newBuilder(s, newRecordingWriter(), true).Build(ctx, "run-1", &asof)
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, contracts.PositionSourceLedger, res.PositionSource)
	require.Len(t, res.Trades, 2)

	// 750 / 100 = 7 주, 750 / 50 = 15 주
	assert.True(t, res.Trades[0].Units.Equal(decimal.NewFromInt(7)))
	assert.True(t, res.Trades[1].Units.Equal(decimal.NewFromInt(15)))

	stored, err := s.ListIntendedTrades(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	detail := res.Detail()
	assert.Equal(t, 2, detail.IntendedCount)
	assert.True(t, detail.Enabled)
}

func TestBuild_PrefersReconciledSnapshot(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedTargets(t, s, asof)
	s.SetLedger(decimal.NewFromInt(10000), nil, 1)
	s.AddReconciliation(contracts.ReconciliationRecord{SnapshotDate: asof, EvaluatedAt: asof}, true, &contracts.PositionSnapshot{
		Cash:     decimal.NewFromInt(0),
		Holdings: map[string]decimal.Decimal{"AAA": decimal.NewFromInt(100)},
	})
	s.SetClosePrice(asof, "AAA", decimal.NewFromInt(100))
	s.SetClosePrice(asof, "BBB", decimal.NewFromInt(50))

	res, err := newBuilder(s, newRecordingWriter(), true).Build(ctx, "run-1", &asof)
	require.NoError(t, err)
	assert.Equal(t, contracts.PositionSourceReconciliation, res.PositionSource)
	require.NotEmpty(t, res.Trades)
	assert.Equal(t, contracts.SideSell, res.Trades[0].Side)
	assert.Equal(t, "AAA", res.Trades[0].Symbol)
}

func TestBuild_StaleSnapshotFallsBackToLedger(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedTargets(t, s, asof)
	s.SetLedger(decimal.NewFromInt(10000), nil, 1)
	old := asof.AddDate(0, 0, -3)
	s.AddReconciliation(contracts.ReconciliationRecord{SnapshotDate: old, EvaluatedAt: old}, true, &contracts.PositionSnapshot{
		Cash:     decimal.NewFromInt(0),
		Holdings: map[string]decimal.Decimal{"AAA": decimal.NewFromInt(100)},
	})
	s.SetClosePrice(asof, "AAA", decimal.NewFromInt(100))
	s.SetClosePrice(asof, "BBB", decimal.NewFromInt(50))

	res, err := newBuilder(s, newRecordingWriter(), true).Build(ctx, "run-1", &asof)
	require.NoError(t, err)
	assert.Equal(t, contracts.PositionSourceLedger, res.PositionSource)

	// 3일 전 스냅샷도 허용 기간 안이면 사용
	cfg := testConfig()
	cfg.Enabled = true
	cfg.ReconcileMaxAgeDays = 3
	res, err = NewTradeBuilder(cfg, s, s, s, newRecordingWriter(), logger.NewNop()).Build(ctx, "run-1", &asof)
	require.NoError(t, err)
	assert.Equal(t, contracts.PositionSourceReconciliation, res.PositionSource)
}

func TestRecentSnapshot(t *testing.T) {
	day := func(offset int) *time.Time {
		d := asof.AddDate(0, 0, offset)
		return &d
	}

	tests := []struct {
		name   string
		date   *time.Time
		maxAge int
		want   bool
	}{
		{"same day", day(0), 0, true},
		{"one day old, window 0", day(-1), 0, false},
		{"edge of window", day(-7), 7, true},
		{"after asof", day(1), 7, false},
		{"no date", nil, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recentSnapshot(tt.date, asof, tt.maxAge))
		})
	}
}

func TestBuild_RerunClearsStaleIntents(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.ReplaceIntendedTrades(ctx, "run-1", []contracts.IntendedTrade{{RunID: "run-1", Sequence: 1, Symbol: "OLD"}}))

	res, err := newBuilder(s, newRecordingWriter(), false).Build(ctx, "run-1", &asof)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)

	stored, err := s.ListIntendedTrades(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}
