package riskgate

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/internal/execution"
	"github.com/wonny/tradeops/backend/internal/policy"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// Artifact file names (exactly one is present per run)
const (
	ApprovedArtifact = "riskguard_approved.json"
	BlockedArtifact  = "riskguard_blocked.json"
)

// Config defines risk gate parameters
type Config struct {
	ReconcileRequired   bool
	ReconcileMaxAgeDays int
	VerifiedMarker      string // 유니버스 notes 에 있어야 하는 검증 마커
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return ConfigFromPolicy(policy.Default(), -1, "ETORO_VERIFIED")
}

// ConfigFromPolicy maps the policy reconcile section.
// maxAgeOverride >= 0 replaces the policy staleness window.
func ConfigFromPolicy(p *policy.Policy, maxAgeOverride int, marker string) Config {
	maxAge := p.Reconcile.MaxAgeDays
	if maxAgeOverride >= 0 {
		maxAge = maxAgeOverride
	}
	return Config{
		ReconcileRequired:   p.Reconcile.Required,
		ReconcileMaxAgeDays: maxAge,
		VerifiedMarker:      marker,
	}
}

// Sizer runs the trade sizing engine for a run
type Sizer interface {
	Build(ctx context.Context, runID string, asof *time.Time) (*execution.SizingResult, error)
}

// ArtifactWriter persists per-run JSON diagnostics
type ArtifactWriter interface {
	WriteRunJSON(runID, name string, v any) (string, error)
	RemoveRunFile(runID, name string) error
}

// Notifier is told about blocked decisions
type Notifier interface {
	NotifyBlocked(ctx context.Context, decision *contracts.Decision, checks []contracts.RiskCheck, artifactPath string) error
}

// Evaluation is the full result of one gate evaluation
type Evaluation struct {
	Decision      contracts.Decision
	Checks        []contracts.RiskCheck
	IntendedCount int
	ArtifactPath  string
}

// Evaluator runs the fixed check set and persists the decision
// ⭐ SSOT: 거래 승인/차단 판단은 여기서만
type Evaluator struct {
	config    Config
	facts     contracts.Facts
	store     contracts.Store
	sizer     Sizer
	artifacts ArtifactWriter
	notifier  Notifier
	logger    *logger.Logger
	now       func() time.Time
}

// NewEvaluator creates a new risk gate evaluator. notifier may be nil.
func NewEvaluator(
	config Config,
	facts contracts.Facts,
	store contracts.Store,
	sizer Sizer,
	artifacts ArtifactWriter,
	notifier Notifier,
	log *logger.Logger,
) *Evaluator {
	return &Evaluator{
		config:    config,
		facts:     facts,
		store:     store,
		sizer:     sizer,
		artifacts: artifacts,
		notifier:  notifier,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs every check for the run and upserts checks and decision.
// proposed are the run's allocator targets, echoed into the diagnostic artifact.
func (e *Evaluator) Evaluate(ctx context.Context, runID string, asof *time.Time, proposed []contracts.PortfolioTarget) (*Evaluation, error) {
	outcomes := make([]CheckOutcome, 0, len(contracts.CheckNames))

	steps := []func(context.Context, string) (CheckOutcome, error){
		e.checkDataQuality,
		func(ctx context.Context, runID string) (CheckOutcome, error) {
			return e.checkReconciliation(ctx, runID, asof)
		},
		e.checkConfirmations,
		e.checkUniverse,
		e.checkLedger,
	}
	for _, step := range steps {
		out, err := step(ctx, runID)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out)
	}

	tb, extra, intended, err := e.checkTradeBuilder(ctx, runID, asof)
	if err != nil {
		return nil, err
	}
	outcomes = append(outcomes, tb)

	var extras []contracts.Reason
	if extra != nil {
		extras = append(extras, *extra)
	}

	decision := Decide(runID, asof, outcomes, extras, e.now())

	checks := make([]contracts.RiskCheck, 0, len(outcomes))
	for _, o := range outcomes {
		checks = append(checks, o.Check)
	}

	// 저장 (run+name / run 기준 upsert)
	if err := e.store.UpsertRiskChecks(ctx, checks); err != nil {
		return nil, fmt.Errorf("failed to upsert risk checks: %w", err)
	}
	if err := e.store.UpsertDecision(ctx, &decision); err != nil {
		return nil, fmt.Errorf("failed to upsert decision: %w", err)
	}

	eval := &Evaluation{
		Decision:      decision,
		Checks:        checks,
		IntendedCount: intended,
	}

	path, err := e.writeArtifact(eval, proposed)
	if err != nil {
		return nil, err
	}
	eval.ArtifactPath = path

	log := e.logger.WithRun(runID, "riskguard").WithFields(map[string]interface{}{
		"approved":      decision.Approved,
		"decision_type": decision.DecisionType,
		"reasons":       decision.ReasonCodes(),
		"intended":      intended,
	})
	if decision.Approved {
		log.Info("RiskGuard approved")
		return eval, nil
	}
	log.Warn("RiskGuard blocked")

	if e.notifier != nil {
		if err := e.notifier.NotifyBlocked(ctx, &decision, checks, path); err != nil {
			e.logger.WithError(err).WithField("run_id", runID).Warn("Failed to emit blocked alert")
		}
	}
	return eval, nil
}

// ============================================================================
// Artifacts
// ============================================================================

type approvedPayload struct {
	RunID               string                      `json:"run_id"`
	AsOfDate            *string                     `json:"asof_date"`
	Approved            bool                        `json:"approved"`
	DecisionType        contracts.DecisionType      `json:"decision_type"`
	Targets             []contracts.PortfolioTarget `json:"targets"`
	IntendedTradesCount int                         `json:"intended_trades_count"`
}

type blockedPayload struct {
	RunID           string                      `json:"run_id"`
	AsOfDate        *string                     `json:"asof_date"`
	Approved        bool                        `json:"approved"`
	DecisionType    contracts.DecisionType      `json:"decision_type"`
	Reasons         []contracts.Reason          `json:"reasons"`
	RiskChecks      []contracts.RiskCheck       `json:"risk_checks"`
	ProposedTargets []contracts.PortfolioTarget `json:"proposed_targets"`
}

func (e *Evaluator) writeArtifact(eval *Evaluation, proposed []contracts.PortfolioTarget) (string, error) {
	d := eval.Decision
	if proposed == nil {
		proposed = []contracts.PortfolioTarget{}
	}

	var asof *string
	if d.AsOfDate != nil {
		s := contracts.FormatDate(d.AsOfDate)
		asof = &s
	}

	name, stale := BlockedArtifact, ApprovedArtifact
	var payload any = blockedPayload{
		RunID:           d.RunID,
		AsOfDate:        asof,
		Approved:        false,
		DecisionType:    contracts.DecisionNoTrade,
		Reasons:         d.Reasons,
		RiskChecks:      eval.Checks,
		ProposedTargets: proposed,
	}
	if d.Approved {
		name, stale = ApprovedArtifact, BlockedArtifact
		payload = approvedPayload{
			RunID:               d.RunID,
			AsOfDate:            asof,
			Approved:            true,
			DecisionType:        contracts.DecisionTrade,
			Targets:             proposed,
			IntendedTradesCount: eval.IntendedCount,
		}
	}

	// 재실행으로 결정이 바뀐 경우 이전 산출물 제거
	if err := e.artifacts.RemoveRunFile(d.RunID, stale); err != nil {
		return "", fmt.Errorf("failed to remove stale %s: %w", stale, err)
	}
	path, err := e.artifacts.WriteRunJSON(d.RunID, name, payload)
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}
