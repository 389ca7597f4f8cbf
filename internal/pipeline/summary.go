package pipeline

import (
	"time"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// Summary is the run_summary.json document
type Summary struct {
	RunID          string              `json:"run_id"`
	Cadence        string              `json:"cadence"`
	Status         contracts.RunStatus `json:"status"`
	AsOfDate       *string             `json:"asof_date"`
	ConfigHash     string              `json:"config_hash"`
	GitCommit      string              `json:"git_commit,omitempty"`
	Stages         []StageResult       `json:"stages"`
	Targets        int                 `json:"targets"`
	Decision       *SummaryDecision    `json:"decision,omitempty"`
	IntendedTrades int                 `json:"intended_trades"`
	TicketID       string              `json:"ticket_id,omitempty"`
	MaterialHash   string              `json:"material_hash,omitempty"`
	StartedAt      time.Time           `json:"started_at_utc"`
	FinishedAt     time.Time           `json:"finished_at_utc"`
	DurationMS     int64               `json:"duration_ms"`
	Error          string              `json:"error,omitempty"`
}

// SummaryDecision is the decision excerpt of a run summary
type SummaryDecision struct {
	Approved     bool                   `json:"approved"`
	DecisionType contracts.DecisionType `json:"decision_type"`
	ReasonCodes  []string               `json:"reason_codes"`
}

func newSummary(run *contracts.RunContext, r *RunResult) Summary {
	s := Summary{
		RunID:      run.RunID,
		Cadence:    run.Cadence,
		Status:     r.Status,
		ConfigHash: run.ConfigHash,
		GitCommit:  run.GitCommit,
		Stages:     r.Stages,
		Targets:    len(r.Targets),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.AsOfDate != nil {
		d := contracts.FormatDate(r.AsOfDate)
		s.AsOfDate = &d
	}
	if r.Evaluation != nil {
		s.Decision = &SummaryDecision{
			Approved:     r.Evaluation.Decision.Approved,
			DecisionType: r.Evaluation.Decision.DecisionType,
			ReasonCodes:  r.Evaluation.Decision.ReasonCodes(),
		}
		s.IntendedTrades = r.Evaluation.IntendedCount
	}
	if r.Ticket != nil {
		s.TicketID = r.Ticket.Ticket.TicketID
		s.MaterialHash = r.Ticket.MaterialHash
	}
	if r.Error != nil {
		s.Error = r.Error.Error()
	}
	return s
}
