package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

// RunReader is the read side of run-level decisions and trades
type RunReader interface {
	GetDecision(ctx context.Context, runID string) (*contracts.Decision, error)
	ListRiskChecks(ctx context.Context, runID string) ([]contracts.RiskCheck, error)
	ListIntendedTrades(ctx context.Context, runID string) ([]contracts.IntendedTrade, error)
}

// RunHandler handles run-related API endpoints
// ⭐ SSOT: 런 조회 API 핸들러는 이 구조체에서만
type RunHandler struct {
	store  RunReader
	logger *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(store RunReader, log *logger.Logger) *RunHandler {
	return &RunHandler{
		store:  store,
		logger: log,
	}
}

// DecisionResponse is the decision of a run with its checks
type DecisionResponse struct {
	Decision    *contracts.Decision   `json:"decision"`
	ReasonCodes []string              `json:"reason_codes"`
	Checks      []contracts.RiskCheck `json:"checks"`
}

// GetDecision returns the decision and risk checks of a run
// GET /api/runs/{run_id}/decision
func (h *RunHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["run_id"]

	decision, err := h.store.GetDecision(ctx, runID)
	if errors.Is(err, contracts.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Decision not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("run_id", runID).Error("Failed to get decision")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve decision")
		return
	}

	checks, err := h.store.ListRiskChecks(ctx, runID)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", runID).Error("Failed to list risk checks")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve risk checks")
		return
	}

	respondJSON(w, http.StatusOK, DecisionResponse{
		Decision:    decision,
		ReasonCodes: decision.ReasonCodes(),
		Checks:      checks,
	})
}

// TradesResponse lists the intended trades of a run
type TradesResponse struct {
	RunID  string                    `json:"run_id"`
	Count  int                       `json:"count"`
	Trades []contracts.IntendedTrade `json:"trades"`
}

// GetTrades returns the intended trades of a run in execution order
// GET /api/runs/{run_id}/trades
func (h *RunHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]

	trades, err := h.store.ListIntendedTrades(r.Context(), runID)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", runID).Error("Failed to list intended trades")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve trades")
		return
	}
	if trades == nil {
		trades = []contracts.IntendedTrade{}
	}

	respondJSON(w, http.StatusOK, TradesResponse{
		RunID:  runID,
		Count:  len(trades),
		Trades: trades,
	})
}
