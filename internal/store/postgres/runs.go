package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/database"
)

// ============================================================================
// Runs
// ============================================================================

const runColumns = `run_id::text, asof_date, config_hash, coalesce(git_commit, ''), cadence, status, coalesce(notes, ''), started_at, finished_at`

func (s *Store) CreateRun(ctx context.Context, run *contracts.RunContext) error {
	query := `
		INSERT INTO runs (run_id, asof_date, config_hash, git_commit, cadence, status, notes, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		run.RunID,
		dateArg(run.AsOfDate),
		run.ConfigHash,
		run.GitCommit,
		run.Cadence,
		string(run.Status),
		run.Notes,
		run.StartedAt.UTC(),
		utcPtr(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (*contracts.RunContext, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = $1`, runID))
	if err != nil {
		return nil, notFound(err)
	}
	return run, nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, status contracts.RunStatus, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runs SET status = $2, notes = $3, finished_at = $4
		WHERE run_id = $1`,
		runID, string(status), notes, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (s *Store) LatestRun(ctx context.Context, cadence string) (*contracts.RunContext, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE ($1 = '' OR cadence = $1)
		ORDER BY started_at DESC
		LIMIT 1`, cadence))
	if err != nil {
		return nil, notFound(err)
	}
	return run, nil
}

func scanRun(row pgx.Row) (*contracts.RunContext, error) {
	var (
		run    contracts.RunContext
		status string
	)
	if err := row.Scan(
		&run.RunID, &run.AsOfDate, &run.ConfigHash, &run.GitCommit, &run.Cadence,
		&status, &run.Notes, &run.StartedAt, &run.FinishedAt,
	); err != nil {
		return nil, err
	}
	run.Status = contracts.RunStatus(status)
	return &run, nil
}

// ============================================================================
// Risk checks / decisions
// ============================================================================

func (s *Store) UpsertRiskChecks(ctx context.Context, checks []contracts.RiskCheck) error {
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, c := range checks {
			details, err := json.Marshal(c.Detail)
			if err != nil {
				return fmt.Errorf("failed to marshal check detail: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO risk_checks (run_id, check_name, passed, details)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (run_id, check_name) DO UPDATE SET
					passed = EXCLUDED.passed,
					details = EXCLUDED.details`,
				c.RunID, string(c.Name), c.Passed, details,
			); err != nil {
				return fmt.Errorf("failed to upsert risk check %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func (s *Store) ListRiskChecks(ctx context.Context, runID string) ([]contracts.RiskCheck, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT check_name, passed, details FROM risk_checks WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk checks: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.RiskCheck, 0, len(contracts.CheckNames))
	for rows.Next() {
		var (
			name    string
			details []byte
			c       = contracts.RiskCheck{RunID: runID}
		)
		if err := rows.Scan(&name, &c.Passed, &details); err != nil {
			return nil, fmt.Errorf("failed to scan risk check: %w", err)
		}
		c.Name = contracts.CheckName(name)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &c.Detail); err != nil {
				return nil, fmt.Errorf("failed to decode check detail %s: %w", name, err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rank := func(n contracts.CheckName) int {
		if o := n.Order(); o > 0 {
			return o
		}
		return 999
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank(out[i].Name), rank(out[j].Name)
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
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

	query := `
		INSERT INTO decisions (run_id, asof_date, approved, decision_type, reasons, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			asof_date = EXCLUDED.asof_date,
			approved = EXCLUDED.approved,
			decision_type = EXCLUDED.decision_type,
			reasons = EXCLUDED.reasons,
			decided_at = EXCLUDED.decided_at
	`
	if _, err := s.pool.Exec(ctx, query,
		decision.RunID,
		dateArg(decision.AsOfDate),
		decision.Approved,
		string(decision.DecisionType),
		raw,
		decision.DecidedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to upsert decision: %w", err)
	}
	return nil
}

func (s *Store) GetDecision(ctx context.Context, runID string) (*contracts.Decision, error) {
	var (
		d            = contracts.Decision{RunID: runID}
		decisionType string
		reasons      []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT asof_date, approved, decision_type, reasons, decided_at
		FROM decisions WHERE run_id = $1`, runID,
	).Scan(&d.AsOfDate, &d.Approved, &decisionType, &reasons, &d.DecidedAt)
	if err != nil {
		return nil, notFound(err)
	}

	d.DecisionType = contracts.DecisionType(decisionType)
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &d.Reasons); err != nil {
			return nil, fmt.Errorf("failed to decode reasons: %w", err)
		}
	}
	return &d, nil
}
