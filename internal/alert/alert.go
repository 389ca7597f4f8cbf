package alert

import (
	"fmt"
	"strings"
	"time"
)

// Type is the category of an alert
type Type string

const (
	TypeDataQualityFail     Type = "DATA_QUALITY_FAIL"
	TypeReconciliationFail  Type = "RECONCILIATION_FAIL"
	TypeConfirmationMissing Type = "CONFIRMATION_MISSING"
	TypeRiskGuardBlocked    Type = "RISKGUARD_BLOCKED"
	TypeSchedulerMisfire    Type = "SCHEDULER_MISFIRE"
)

// Valid reports whether t is a known alert type
func (t Type) Valid() bool {
	switch t {
	case TypeDataQualityFail, TypeReconciliationFail, TypeConfirmationMissing, TypeRiskGuardBlocked, TypeSchedulerMisfire:
		return true
	}
	return false
}

// Severity is the urgency of an alert
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarn || s == SeverityError
}

// Alert is the persisted alert document (alerts/<alert_id>.json)
type Alert struct {
	AlertID            string         `json:"alert_id"`
	Type               Type           `json:"alert_type"`
	Severity           Severity       `json:"severity"`
	CreatedUTC         string         `json:"created_utc"`
	RunID              string         `json:"run_id,omitempty"`
	TicketID           string         `json:"ticket_id,omitempty"`
	Summary            string         `json:"summary"`
	Details            map[string]any `json:"details"`
	ArtifactPaths      []string       `json:"artifact_paths"`
	NextOperatorAction string         `json:"next_operator_action"`
}

// Request describes an alert to emit
type Request struct {
	Type          Type
	Severity      Severity
	RunID         string
	TicketID      string
	Summary       string
	Details       map[string]any
	ArtifactPaths []string
}

// ID builds "<ts>-<type>-<run|ticket|none>"
func ID(ts time.Time, t Type, runID, ticketID string) string {
	suffix := strings.TrimSpace(runID)
	if suffix == "" {
		suffix = strings.TrimSpace(ticketID)
	}
	if suffix == "" {
		suffix = "none"
	}
	return fmt.Sprintf("%s-%s-%s", ts.UTC().Format("20060102T150405Z"), t, suffix)
}

// NextAction returns the operator runbook line for an alert type
func NextAction(t Type, runID, ticketID string) string {
	switch t {
	case TypeDataQualityFail:
		return "Inspect data quality report; if holiday/late data, rerun with an as-of date override; trading remains blocked until PASS."
	case TypeReconciliationFail:
		return "Capture a fresh broker snapshot and run the reconcile SOP; trading remains blocked until reconciliation passes."
	case TypeConfirmationMissing:
		if ticketID != "" {
			return fmt.Sprintf("Submit confirmation for ticket_id=%s then rerun the ops run.", ticketID)
		}
		return "Submit the missing ticket confirmation then rerun the ops run."
	case TypeRiskGuardBlocked:
		if runID != "" {
			return fmt.Sprintf("Review riskguard_blocked.json for run_id=%s; do not trade until blockers are cleared and the gate approves.", runID)
		}
		return "Review riskguard_blocked.json; do not trade until blockers are cleared and the gate approves."
	case TypeSchedulerMisfire:
		return "Inspect the scheduler log, fix the underlying error, then rerun the missed job manually."
	}
	return "Review alert details and follow the runbook."
}
