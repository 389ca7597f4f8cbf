package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/internal/riskgate"
	"github.com/wonny/tradeops/backend/internal/ticket"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// SummaryArtifact is the per-run file name of the run summary
const SummaryArtifact = "run_summary.json"

// Stage names
const (
	StageAllocate  = "allocate"
	StageRiskGuard = "riskguard"
	StageTicket    = "ticket"
)

// Locker guards a run id against concurrent execution
type Locker interface {
	Acquire(ctx context.Context, runID string) (func(context.Context) error, error)
}

// Allocator produces (and persists) the run's target weights
type Allocator interface {
	Run(ctx context.Context, run *contracts.RunContext, asof *time.Time) ([]contracts.PortfolioTarget, error)
}

// Gate evaluates the run's safety checks and sizes its trades
type Gate interface {
	Evaluate(ctx context.Context, runID string, asof *time.Time, proposed []contracts.PortfolioTarget) (*riskgate.Evaluation, error)
}

// Renderer materializes the run's ticket
type Renderer interface {
	Materialize(ctx context.Context, runID string) (*ticket.Result, error)
}

// ArtifactWriter persists per-run JSON artifacts
type ArtifactWriter interface {
	WriteRunJSON(runID, name string, v any) (string, error)
}

// RunConfig holds configuration for one ops run
type RunConfig struct {
	RunID      string     // 비어있으면 새 UUID
	AsOfDate   *time.Time // 기준일 override
	ConfigHash string
	GitCommit  string
	Cadence    string
	Notes      string
}

// StageResult records one stage of a run
type StageResult struct {
	Name         string `json:"name"`
	OK           bool   `json:"ok"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	Error        string `json:"error,omitempty"`
}

// RunResult holds the results of one ops run
type RunResult struct {
	RunID       string
	Cadence     string
	AsOfDate    *time.Time
	Status      contracts.RunStatus
	Stages      []StageResult
	Targets     []contracts.PortfolioTarget
	Evaluation  *riskgate.Evaluation
	Ticket      *ticket.Result
	SummaryPath string
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration
	Error       error
}

// Orchestrator coordinates allocate → riskguard (with sizing) → ticket for one run
// ⭐ SSOT: 운영 런 조율은 여기서만
type Orchestrator struct {
	runs      contracts.RunRepository
	facts     contracts.Facts
	lock      Locker
	allocator Allocator
	gate      Gate
	renderer  Renderer
	artifacts ArtifactWriter
	logger    *logger.Logger
	now       func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	runs contracts.RunRepository,
	facts contracts.Facts,
	lock Locker,
	allocator Allocator,
	gate Gate,
	renderer Renderer,
	artifacts ArtifactWriter,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		runs:      runs,
		facts:     facts,
		lock:      lock,
		allocator: allocator,
		gate:      gate,
		renderer:  renderer,
		artifacts: artifacts,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one ops run. A blocked decision is a passed run; a stage
// error fails the run and is returned after the summary is written.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	release, err := o.lock.Acquire(ctx, cfg.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			o.logger.WithError(err).WithField("run_id", cfg.RunID).Warn("Failed to release run lock")
		}
	}()

	run, err := o.ensureRun(ctx, cfg)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:     run.RunID,
		Cadence:   run.Cadence,
		Status:    contracts.RunStatusRunning,
		Stages:    make([]StageResult, 0, 3),
		StartedAt: o.now(),
	}

	log := o.logger.WithRun(run.RunID, "ops")
	log.WithFields(map[string]interface{}{
		"cadence":     run.Cadence,
		"config_hash": run.ConfigHash,
		"asof":        contracts.FormatDate(run.AsOfDate),
	}).Info("Starting ops run")

	result.Error = o.runStages(ctx, run, result)

	result.Status = contracts.RunStatusPassed
	if result.Error != nil {
		result.Status = contracts.RunStatusFailed
	}
	result.FinishedAt = o.now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	path, err := o.artifacts.WriteRunJSON(run.RunID, SummaryArtifact, newSummary(run, result))
	if err != nil {
		log.WithError(err).Error("Failed to write run summary")
		if result.Error == nil {
			result.Error = fmt.Errorf("failed to write %s: %w", SummaryArtifact, err)
			result.Status = contracts.RunStatusFailed
		}
	}
	result.SummaryPath = path

	// 실패를 가리지 않도록 finish 는 best-effort
	notes := fmt.Sprintf("ops: %s", result.Status)
	if result.Error != nil {
		notes = fmt.Sprintf("ops: %s: %v", result.Status, result.Error)
	}
	if err := o.runs.FinishRun(context.WithoutCancel(ctx), run.RunID, result.Status, notes); err != nil {
		log.WithError(err).Error("Failed to finish run")
	}

	fields := map[string]interface{}{
		"status":      result.Status,
		"stages":      stageNames(result.Stages),
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Evaluation != nil {
		fields["decision_type"] = result.Evaluation.Decision.DecisionType
		fields["reasons"] = result.Evaluation.Decision.ReasonCodes()
	}
	if result.Ticket != nil {
		fields["ticket_id"] = result.Ticket.Ticket.TicketID
	}

	if result.Error != nil {
		log.WithFields(fields).WithError(result.Error).Error("Ops run failed")
		return result, result.Error
	}
	log.WithFields(fields).Info("Ops run completed")
	return result, nil
}

// ensureRun creates the run row, or reuses it when the id already exists
func (o *Orchestrator) ensureRun(ctx context.Context, cfg RunConfig) (*contracts.RunContext, error) {
	existing, err := o.runs.GetRun(ctx, cfg.RunID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, contracts.ErrNotFound) {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	cadence := cfg.Cadence
	if cadence == "" {
		cadence = "ops"
	}
	var asof *time.Time
	if cfg.AsOfDate != nil {
		d := contracts.DateOnly(*cfg.AsOfDate)
		asof = &d
	}

	run := &contracts.RunContext{
		RunID:      cfg.RunID,
		AsOfDate:   asof,
		ConfigHash: cfg.ConfigHash,
		GitCommit:  cfg.GitCommit,
		Cadence:    cadence,
		Status:     contracts.RunStatusRunning,
		Notes:      cfg.Notes,
		StartedAt:  o.now(),
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (o *Orchestrator) runStages(ctx context.Context, run *contracts.RunContext, result *RunResult) error {
	asof, err := o.facts.ResolveAsOf(ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("failed to resolve as-of date: %w", err)
	}
	result.AsOfDate = asof

	// 1. 목표 비중
	targets, err := o.allocator.Run(ctx, run, asof)
	if err != nil {
		result.Stages = append(result.Stages, StageResult{Name: StageAllocate, Error: err.Error()})
		return fmt.Errorf("%s failed: %w", StageAllocate, err)
	}
	result.Targets = targets
	result.Stages = append(result.Stages, StageResult{Name: StageAllocate, OK: true})

	// 2. 게이트 + 사이징
	eval, err := o.gate.Evaluate(ctx, run.RunID, asof, targets)
	if err != nil {
		result.Stages = append(result.Stages, StageResult{Name: StageRiskGuard, Error: err.Error()})
		return fmt.Errorf("%s failed: %w", StageRiskGuard, err)
	}
	result.Evaluation = eval
	result.Stages = append(result.Stages, StageResult{Name: StageRiskGuard, OK: true, ArtifactPath: eval.ArtifactPath})

	// 3. 티켓
	res, err := o.renderer.Materialize(ctx, run.RunID)
	if err != nil {
		result.Stages = append(result.Stages, StageResult{Name: StageTicket, Error: err.Error()})
		return fmt.Errorf("%s failed: %w", StageTicket, err)
	}
	result.Ticket = res
	result.Stages = append(result.Stages, StageResult{Name: StageTicket, OK: true, ArtifactPath: res.Document.ArtifactPaths["ticket_json"]})

	return nil
}

func stageNames(stages []StageResult) string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		mark := "ok"
		if !s.OK {
			mark = "fail"
		}
		names = append(names, s.Name+":"+mark)
	}
	return strings.Join(names, ",")
}
