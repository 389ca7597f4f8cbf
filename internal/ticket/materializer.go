package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// Config defines ticket rendering parameters
type Config struct {
	BaseCurrency    string
	ExecutionWindow string
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		BaseCurrency:    "GBP",
		ExecutionWindow: "UK time 14:30-16:00",
	}
}

// ArtifactWriter persists ticket files
type ArtifactWriter interface {
	RunDir(runID string) string
	TicketDir(ticketID string) string
	WriteTicketJSON(ticketID, name string, v any) (string, error)
	WriteTicketText(ticketID, name, text string) (string, error)
}

// Result is one materialized ticket
type Result struct {
	Ticket       contracts.Ticket
	Document     Document
	Material     Material
	MaterialHash string
	Created      bool // 이번 호출에서 처음 생성됨
}

// Materializer renders the idempotent ticket of a run
// ⭐ SSOT: 티켓 ID/해시 산출은 여기서만
type Materializer struct {
	config    Config
	facts     contracts.Facts
	store     contracts.Store
	artifacts ArtifactWriter
	logger    *logger.Logger
	now       func() time.Time
}

// NewMaterializer creates a new ticket materializer
func NewMaterializer(config Config, facts contracts.Facts, store contracts.Store, artifacts ArtifactWriter, log *logger.Logger) *Materializer {
	return &Materializer{
		config:    config,
		facts:     facts,
		store:     store,
		artifacts: artifacts,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Materialize renders, hashes and persists the ticket of runID.
// Re-running with the same facts yields the same ticket id, created_at and material hash.
func (m *Materializer) Materialize(ctx context.Context, runID string) (*Result, error) {
	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	decision, err := m.store.GetDecision(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get decision for run %s: %w", runID, err)
	}
	checks, err := m.store.ListRiskChecks(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk checks: %w", err)
	}
	members, err := m.facts.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}
	intended, err := m.store.ListIntendedTrades(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list intended trades: %w", err)
	}

	// 1. 식별자 (기존 티켓 우선, first-write-wins)
	ticketID, createdAt, created, err := m.identity(ctx, runID, decision.DecisionType)
	if err != nil {
		return nil, err
	}

	fills, err := m.store.ListFills(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fills: %w", err)
	}

	asof := contracts.FormatDate(run.AsOfDate)
	if asof == "" {
		asof = contracts.FormatDate(decision.AsOfDate)
	}

	// 2. 해시
	material := BuildMaterial(MaterialInput{
		DecisionType:   decision.DecisionType,
		AsOfDate:       asof,
		BaseCurrency:   m.config.BaseCurrency,
		Universe:       members,
		Checks:         checks,
		Reasons:        decision.Reasons,
		IntendedTrades: intended,
		Fills:          fills,
	})
	hash, err := material.Hash()
	if err != nil {
		return nil, err
	}

	// 3. 문서
	doc := m.document(run, decision, ticketID, createdAt, asof, members, checks, intended, fills)
	doc.Meta = DocumentMeta{MaterialHash: hash, MaterialSchema: MaterialSchema}

	if err := m.writeArtifacts(&doc, hash); err != nil {
		return nil, err
	}

	rendered, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ticket: %w", err)
	}

	// 4. 저장 (run 기준 upsert) + 인텐트 연결
	t := contracts.Ticket{
		TicketID:     ticketID,
		RunID:        runID,
		DecisionType: decision.DecisionType,
		Status:       contracts.TicketStatusRendered,
		MaterialHash: hash,
		Rendered:     rendered,
		CreatedAt:    createdAt,
		UpdatedAt:    m.now(),
	}
	if err := m.store.UpsertTicket(ctx, &t); err != nil {
		return nil, fmt.Errorf("failed to upsert ticket: %w", err)
	}
	if err := m.store.LinkTradesToTicket(ctx, runID, t.TicketID); err != nil {
		return nil, fmt.Errorf("failed to link intended trades: %w", err)
	}

	m.logger.WithRun(runID, "ticket").WithFields(map[string]interface{}{
		"ticket_id":       t.TicketID,
		"decision_type":   t.DecisionType,
		"material_hash":   hash,
		"intended_trades": len(intended),
		"confirmed_fills": len(fills),
		"created":         created,
	}).Info("Ticket materialized")

	return &Result{
		Ticket:       t,
		Document:     doc,
		Material:     material,
		MaterialHash: hash,
		Created:      created,
	}, nil
}

func (m *Materializer) identity(ctx context.Context, runID string, decisionType contracts.DecisionType) (string, time.Time, bool, error) {
	existing, err := m.store.GetTicketByRun(ctx, runID)
	switch {
	case err == nil:
		return existing.TicketID, existing.CreatedAt, false, nil
	case errors.Is(err, contracts.ErrNotFound):
		// 초 단위 절삭: created_utc 문자열과 저장값 일치
		return NewTicketID(runID, decisionType), m.now().Truncate(time.Second), true, nil
	default:
		return "", time.Time{}, false, fmt.Errorf("failed to get ticket for run %s: %w", runID, err)
	}
}

func (m *Materializer) document(
	run *contracts.RunContext,
	decision *contracts.Decision,
	ticketID string,
	createdAt time.Time,
	asof string,
	members []contracts.UniverseMember,
	checks []contracts.RiskCheck,
	intended []contracts.IntendedTrade,
	fills []contracts.ConfirmedFill,
) Document {
	ordered := make([]contracts.RiskCheck, 0, len(checks))
	for _, c := range checks {
		if c.Name.Known() {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Name.Order() < ordered[j].Name.Order() })

	trades := append([]contracts.IntendedTrade(nil), intended...)
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Sequence < trades[j].Sequence })

	reasons := decision.Reasons
	if reasons == nil {
		reasons = []contracts.Reason{}
	}
	if fills == nil {
		fills = []contracts.ConfirmedFill{}
	}

	ticketDir := m.artifacts.TicketDir(ticketID)
	return Document{
		TicketID:        ticketID,
		RunID:           run.RunID,
		AsOfDate:        asof,
		BaseCurrency:    m.config.BaseCurrency,
		CreatedUTC:      createdAt.UTC().Format("2006-01-02T15:04:05Z"),
		DecisionType:    decision.DecisionType,
		ExecutionWindow: m.config.ExecutionWindow,
		Universe:        summarizeUniverse(members),
		GateStatuses:    GateStatuses{RiskChecks: ordered},
		BlockingReasons: reasons,
		IntendedTrades:  trades,
		ConfirmedFills:  fills,
		GitCommit:       run.GitCommit,
		ConfigHash:      run.ConfigHash,
		ArtifactPaths: map[string]string{
			"run_dir":           m.artifacts.RunDir(run.RunID),
			"ticket_dir":        ticketDir,
			"ticket_json":       filepath.Join(ticketDir, JSONFile),
			"ticket_md":         filepath.Join(ticketDir, MarkdownFile),
			"material_hash_txt": filepath.Join(ticketDir, MaterialHashFile),
		},
	}
}

func (m *Materializer) writeArtifacts(doc *Document, hash string) error {
	if _, err := m.artifacts.WriteTicketJSON(doc.TicketID, JSONFile, doc); err != nil {
		return fmt.Errorf("failed to write %s: %w", JSONFile, err)
	}
	if _, err := m.artifacts.WriteTicketText(doc.TicketID, MarkdownFile, RenderMarkdown(doc)); err != nil {
		return fmt.Errorf("failed to write %s: %w", MarkdownFile, err)
	}
	if _, err := m.artifacts.WriteTicketText(doc.TicketID, MaterialHashFile, hash+"\n"); err != nil {
		return fmt.Errorf("failed to write %s: %w", MaterialHashFile, err)
	}
	return nil
}
