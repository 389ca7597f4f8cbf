package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/internal/policy"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// AllocatorConfig defines signal → weight allocation parameters
type AllocatorConfig struct {
	MaxPositions int     // 최대 종목 수 [1, 50]
	MaxWeight    float64 // 종목당 최대 비중 [0, 0.10]
	CashBuffer   float64 // 최소 현금 비중 [0, 0.10]
	BaseCurrency string
}

// DefaultAllocatorConfig returns default configuration
func DefaultAllocatorConfig() AllocatorConfig {
	return ConfigFromPolicy(policy.Default())
}

// ConfigFromPolicy maps the policy portfolio section
func ConfigFromPolicy(p *policy.Policy) AllocatorConfig {
	return AllocatorConfig{
		MaxPositions: p.Portfolio.MaxPositions,
		MaxWeight:    p.Portfolio.MaxPositionWeight,
		CashBuffer:   p.Portfolio.MinCashBuffer,
		BaseCurrency: p.Meta.BaseCurrency,
	}
}

// Allocator turns ranked signals into equal, capped target weights
// ⭐ SSOT: 시그널 → 목표 비중 변환은 여기서만
type Allocator struct {
	config  AllocatorConfig
	facts   contracts.Facts
	targets contracts.TargetRepository
	logger  *logger.Logger
}

// NewAllocator creates a new allocator
func NewAllocator(config AllocatorConfig, facts contracts.Facts, targets contracts.TargetRepository, log *logger.Logger) *Allocator {
	return &Allocator{
		config:  config,
		facts:   facts,
		targets: targets,
		logger:  log,
	}
}

// Allocate computes targets for signals; it has no side effects.
// 동일 비중 = min(max_weight, (1 - cash_buffer) / 선택 종목 수)
func (a *Allocator) Allocate(runID string, asof time.Time, signals []contracts.Signal) []contracts.PortfolioTarget {
	selected := SelectTop(signals, a.config.MaxPositions)
	if len(selected) == 0 {
		return []contracts.PortfolioTarget{}
	}

	weight := EqualWeight(len(selected), a.config.MaxWeight, a.config.CashBuffer)

	targets := make([]contracts.PortfolioTarget, 0, len(selected))
	for _, s := range selected {
		targets = append(targets, contracts.PortfolioTarget{
			RunID:        runID,
			Symbol:       s.Symbol,
			TargetWeight: weight,
			AsOfDate:     asof,
			BaseCurrency: a.config.BaseCurrency,
		})
	}
	return targets
}

// Run loads the run's signals, allocates and replaces the stored targets.
// Without an as-of date targets are proposed but not persisted.
func (a *Allocator) Run(ctx context.Context, run *contracts.RunContext, asof *time.Time) ([]contracts.PortfolioTarget, error) {
	signals, err := a.facts.Signals(ctx, run.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load signals: %w", err)
	}

	var day time.Time
	if asof != nil {
		day = contracts.DateOnly(*asof)
	}
	targets := a.Allocate(run.RunID, day, signals)

	if asof == nil {
		a.logger.WithFields(map[string]interface{}{
			"run_id":  run.RunID,
			"signals": len(signals),
		}).Warn("No as-of date, targets not persisted")
		return targets, nil
	}

	if err := a.targets.ReplaceTargets(ctx, run.RunID, targets); err != nil {
		return nil, fmt.Errorf("failed to replace targets: %w", err)
	}

	a.logger.WithFields(map[string]interface{}{
		"run_id":       run.RunID,
		"signals":      len(signals),
		"targets":      len(targets),
		"total_weight": contracts.TotalWeight(targets),
	}).Info("Portfolio targets allocated")

	return targets, nil
}

// SelectTop orders signals by rank ascending (unranked last), then symbol,
// and keeps the first maxPositions
func SelectTop(signals []contracts.Signal, maxPositions int) []contracts.Signal {
	if maxPositions <= 0 || len(signals) == 0 {
		return nil
	}

	ordered := make([]contracts.Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].Rank, ordered[j].Rank
		switch {
		case ri == nil && rj != nil:
			return false
		case ri != nil && rj == nil:
			return true
		case ri != nil && rj != nil && *ri != *rj:
			return *ri < *rj
		}
		return ordered[i].Symbol < ordered[j].Symbol
	})

	if len(ordered) > maxPositions {
		ordered = ordered[:maxPositions]
	}
	return ordered
}

// EqualWeight returns the per-position weight for n selected positions
func EqualWeight(n int, maxWeight, cashBuffer float64) float64 {
	if n <= 0 {
		return 0
	}
	budget := math.Max(0, 1-cashBuffer)
	return math.Min(maxWeight, budget/float64(n))
}
