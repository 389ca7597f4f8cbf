package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// ============================================================================
// Runs
// ============================================================================

const runColumns = `run_id, asof_date, config_hash, git_commit, cadence, status, notes, started_at, finished_at`

func (s *Store) CreateRun(ctx context.Context, run *contracts.RunContext) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		nullDate(run.AsOfDate),
		run.ConfigHash,
		run.GitCommit,
		run.Cadence,
		string(run.Status),
		run.Notes,
		formatTime(run.StartedAt),
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (*contracts.RunContext, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		return nil, notFound(err)
	}
	return run, nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, status contracts.RunStatus, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, notes = ?, finished_at = ?
		WHERE run_id = ?`,
		string(status), notes, formatTime(s.now()), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) LatestRun(ctx context.Context, cadence string) (*contracts.RunContext, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE (? = '' OR cadence = ?)
		ORDER BY started_at DESC
		LIMIT 1`,
		cadence, cadence,
	)
	run, err := scanRun(row)
	if err != nil {
		return nil, notFound(err)
	}
	return run, nil
}

func scanRun(row *sql.Row) (*contracts.RunContext, error) {
	var (
		run               contracts.RunContext
		asof, finished    sql.NullString
		status, startedAt string
	)
	if err := row.Scan(
		&run.RunID, &asof, &run.ConfigHash, &run.GitCommit, &run.Cadence,
		&status, &run.Notes, &startedAt, &finished,
	); err != nil {
		return nil, err
	}

	var err error
	run.Status = contracts.RunStatus(status)
	if run.AsOfDate, err = parseNullDate(asof); err != nil {
		return nil, err
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseNullTime(finished); err != nil {
		return nil, err
	}
	return &run, nil
}

// ============================================================================
// Risk checks / decisions
// ============================================================================

func (s *Store) UpsertRiskChecks(ctx context.Context, checks []contracts.RiskCheck) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range checks {
			details, err := json.Marshal(c.Detail)
			if err != nil {
				return fmt.Errorf("failed to marshal check detail: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO risk_checks (run_id, check_name, passed, details)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (run_id, check_name) DO UPDATE SET
					passed = excluded.passed,
					details = excluded.details`,
				c.RunID, string(c.Name), c.Passed, string(details),
			); err != nil {
				return fmt.Errorf("failed to upsert risk check %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func (s *Store) ListRiskChecks(ctx context.Context, runID string) ([]contracts.RiskCheck, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT check_name, passed, details FROM risk_checks WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk checks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.RiskCheck, 0, len(contracts.CheckNames))
	for rows.Next() {
		var (
			name, details string
			c             = contracts.RiskCheck{RunID: runID}
		)
		if err := rows.Scan(&name, &c.Passed, &details); err != nil {
			return nil, fmt.Errorf("failed to scan risk check: %w", err)
		}
		c.Name = contracts.CheckName(name)
		if err := json.Unmarshal([]byte(details), &c.Detail); err != nil {
			return nil, fmt.Errorf("failed to decode check detail %s: %w", name, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortChecks(out)
	return out, nil
}

// sortChecks orders known checks canonically, unknown names last by name
func sortChecks(checks []contracts.RiskCheck) {
	rank := func(n contracts.CheckName) int {
		if o := n.Order(); o > 0 {
			return o
		}
		return 999
	}
	sort.Slice(checks, func(i, j int) bool {
		ri, rj := rank(checks[i].Name), rank(checks[j].Name)
		if ri != rj {
			return ri < rj
		}
		return checks[i].Name < checks[j].Name
	})
}

func (s *Store) UpsertDecision(ctx context.Context, decision *contracts.Decision) error {
	reasons := decision.Reasons
	if reasons == nil {
		reasons = []contracts.Reason{}
	}
	raw, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal reasons: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (run_id, asof_date, approved, decision_type, reasons, decided_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			asof_date = excluded.asof_date,
			approved = excluded.approved,
			decision_type = excluded.decision_type,
			reasons = excluded.reasons,
			decided_at = excluded.decided_at`,
		decision.RunID,
		nullDate(decision.AsOfDate),
		decision.Approved,
		string(decision.DecisionType),
		string(raw),
		formatTime(decision.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert decision: %w", err)
	}
	return nil
}

func (s *Store) GetDecision(ctx context.Context, runID string) (*contracts.Decision, error) {
	var (
		d                     = contracts.Decision{RunID: runID}
		asof                  sql.NullString
		decisionType, reasons string
		decidedAt             string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT asof_date, approved, decision_type, reasons, decided_at
		FROM decisions WHERE run_id = ?`, runID,
	).Scan(&asof, &d.Approved, &decisionType, &reasons, &decidedAt)
	if err != nil {
		return nil, notFound(err)
	}

	d.DecisionType = contracts.DecisionType(decisionType)
	if d.AsOfDate, err = parseNullDate(asof); err != nil {
		return nil, err
	}
	if d.DecidedAt, err = parseTime(decidedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reasons), &d.Reasons); err != nil {
		return nil, fmt.Errorf("failed to decode reasons: %w", err)
	}
	return &d, nil
}
