package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/tradeops/backend/internal/confirmation"
	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// Writer persists alert documents
type Writer interface {
	WriteAlertJSON(alertID string, v any) (string, error)
}

// Outbox forwards alerts to secondary delivery
type Outbox interface {
	Push(ctx context.Context, v interface{}) error
}

// Emitter writes alerts to the file sink and, best-effort, to the outbox
// ⭐ 파일 기록은 반드시 성공해야 함; outbox 실패는 경고만
type Emitter struct {
	writer Writer
	outbox Outbox
	logger *logger.Logger
	now    func() time.Time
}

// NewEmitter creates a new alert emitter. outbox may be nil.
func NewEmitter(writer Writer, outbox Outbox, log *logger.Logger) *Emitter {
	return &Emitter{
		writer: writer,
		outbox: outbox,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Emit validates and records one alert
func (e *Emitter) Emit(ctx context.Context, req Request) (*Alert, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("invalid alert type: %q", req.Type)
	}
	if !req.Severity.Valid() {
		return nil, fmt.Errorf("invalid alert severity: %q", req.Severity)
	}

	now := e.now()
	details := req.Details
	if details == nil {
		details = map[string]any{}
	}
	paths := make([]string, 0, len(req.ArtifactPaths))
	for _, p := range req.ArtifactPaths {
		if p != "" {
			paths = append(paths, p)
		}
	}

	a := &Alert{
		AlertID:            ID(now, req.Type, req.RunID, req.TicketID),
		Type:               req.Type,
		Severity:           req.Severity,
		CreatedUTC:         now.Format("2006-01-02T15:04:05Z"),
		RunID:              req.RunID,
		TicketID:           req.TicketID,
		Summary:            req.Summary,
		Details:            details,
		ArtifactPaths:      paths,
		NextOperatorAction: NextAction(req.Type, req.RunID, req.TicketID),
	}

	path, err := e.writer.WriteAlertJSON(a.AlertID, a)
	if err != nil {
		return nil, fmt.Errorf("failed to write alert: %w", err)
	}

	log := e.logger.WithFields(map[string]interface{}{
		"alert_id": a.AlertID,
		"type":     a.Type,
		"severity": a.Severity,
		"path":     path,
	})
	if a.Severity == SeverityError {
		log.Error(a.Summary)
	} else {
		log.Warn(a.Summary)
	}

	if e.outbox != nil {
		if err := e.outbox.Push(ctx, a); err != nil {
			e.logger.WithError(err).WithField("alert_id", a.AlertID).Warn("Alert outbox delivery failed")
		}
	}
	return a, nil
}

// ============================================================================
// Domain hooks
// ============================================================================

// NotifyBlocked emits RISKGUARD_BLOCKED plus typed alerts for failed data-quality/reconciliation checks
func (e *Emitter) NotifyBlocked(ctx context.Context, decision *contracts.Decision, checks []contracts.RiskCheck, artifactPath string) error {
	asof := contracts.FormatDate(decision.AsOfDate)

	_, err := e.Emit(ctx, Request{
		Type:     TypeRiskGuardBlocked,
		Severity: SeverityWarn,
		RunID:    decision.RunID,
		Summary:  fmt.Sprintf("RISKGUARD_BLOCKED run_id=%s asof_date=%s", decision.RunID, asof),
		Details: map[string]any{
			"run_id":      decision.RunID,
			"asof_date":   asof,
			"reasons":     decision.Reasons,
			"risk_checks": checks,
		},
		ArtifactPaths: []string{artifactPath},
	})
	if err != nil {
		return err
	}

	for _, c := range checks {
		if c.Passed {
			continue
		}
		var t Type
		switch c.Name {
		case contracts.CheckDataQuality:
			t = TypeDataQualityFail
		case contracts.CheckReconciliation:
			t = TypeReconciliationFail
		default:
			continue
		}
		if _, err := e.Emit(ctx, Request{
			Type:          t,
			Severity:      SeverityError,
			RunID:         decision.RunID,
			Summary:       fmt.Sprintf("%s run_id=%s asof_date=%s", t, decision.RunID, asof),
			Details:       map[string]any{"check": c},
			ArtifactPaths: []string{artifactPath},
		}); err != nil {
			return err
		}
	}
	return nil
}

// NotifyConfirmationMissing emits CONFIRMATION_MISSING for an unconfirmed previous ticket
func (e *Emitter) NotifyConfirmationMissing(ctx context.Context, runID string, result *confirmation.DeadlineResult) error {
	_, err := e.Emit(ctx, Request{
		Type:     TypeConfirmationMissing,
		Severity: SeverityError,
		RunID:    runID,
		TicketID: result.PreviousTicketID,
		Summary:  fmt.Sprintf("Previous ticket missing confirmation: ticket_id=%s", result.PreviousTicketID),
		Details: map[string]any{
			"previous_ticket_id":     result.PreviousTicketID,
			"previous_run_id":        result.PreviousRunID,
			"previous_ticket_status": result.PreviousStatus,
			"confirmations_count":    result.ConfirmationsCount,
			"rule":                   result.Rule,
			"evaluated_at_utc":       result.EvaluatedAt.Format(time.RFC3339),
		},
	})
	return err
}

// NotifyMisfire emits SCHEDULER_MISFIRE for a job that exhausted its retries
func (e *Emitter) NotifyMisfire(ctx context.Context, job string, jobErr error) error {
	_, err := e.Emit(ctx, Request{
		Type:     TypeSchedulerMisfire,
		Severity: SeverityError,
		Summary:  fmt.Sprintf("Scheduler job %s failed", job),
		Details: map[string]any{
			"job":   job,
			"error": jobErr.Error(),
		},
	})
	return err
}
