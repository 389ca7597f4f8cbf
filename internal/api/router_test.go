package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeops/backend/internal/api/handlers"
	"github.com/wonny/tradeops/backend/internal/artifact"
	"github.com/wonny/tradeops/backend/internal/confirmation"
	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/internal/store/memory"
	"github.com/wonny/tradeops/backend/pkg/database"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

var created = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, cfg RouterConfig) (http.Handler, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	log := logger.NewNop()

	require.NoError(t, s.UpsertRiskChecks(ctx, []contracts.RiskCheck{
		{RunID: "run-1", Name: contracts.CheckDataQuality, Passed: true},
		{RunID: "run-1", Name: contracts.CheckTradeBuilder, Passed: true},
	}))
	require.NoError(t, s.UpsertDecision(ctx, &contracts.Decision{
		RunID: "run-1", Approved: true, DecisionType: contracts.DecisionTrade, Reasons: []contracts.Reason{}, DecidedAt: created,
	}))
	require.NoError(t, s.ReplaceIntendedTrades(ctx, "run-1", []contracts.IntendedTrade{
		{RunID: "run-1", Sequence: 1, Symbol: "AAA", Side: contracts.SideBuy, NotionalBase: decimal.NewFromInt(700), OrderType: "MKT", ReferencePrice: decimal.NewFromInt(100)},
	}))
	require.NoError(t, s.UpsertTicket(ctx, &contracts.Ticket{
		TicketID: "t-trade", RunID: "run-1", DecisionType: contracts.DecisionTrade, Status: contracts.TicketStatusRendered, CreatedAt: created,
	}))
	require.NoError(t, s.UpsertTicket(ctx, &contracts.Ticket{
		TicketID: "t-none", RunID: "run-2", DecisionType: contracts.DecisionNoTrade, Status: contracts.TicketStatusRendered, CreatedAt: created.Add(time.Hour),
	}))

	reconciler := confirmation.NewReconciler(s, artifact.NewWriter(t.TempDir(), log), nil, log)
	router := NewRouter(cfg,
		handlers.NewRunHandler(s, log),
		handlers.NewTicketHandler(s, reconciler, log),
		log,
	)
	return router, s
}

func defaultRouterConfig() RouterConfig {
	return RouterConfig{RateLimit: 1000, RateBurst: 1000}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, defaultRouterConfig())

	rec := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotContains(t, rec.Body.String(), `"database"`)
}

type stubHealth struct {
	err error
}

func (s stubHealth) HealthCheck(ctx context.Context) (*database.HealthStatus, error) {
	status := &database.HealthStatus{Healthy: s.err == nil, Timestamp: created}
	if s.err != nil {
		status.Error = s.err.Error()
	}
	return status, s.err
}

func TestHealth_Database(t *testing.T) {
	cfg := defaultRouterConfig()
	cfg.Database = stubHealth{}
	router, _ := newTestRouter(t, cfg)

	rec := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":true`)

	cfg.Database = stubHealth{err: errors.New("connection refused")}
	router, _ = newTestRouter(t, cfg)

	rec = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestGetDecision(t *testing.T) {
	router, _ := newTestRouter(t, defaultRouterConfig())

	rec := do(t, router, http.MethodGet, "/api/runs/run-1/decision", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.DecisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Decision.Approved)
	assert.Equal(t, contracts.DecisionTrade, resp.Decision.DecisionType)
	assert.Empty(t, resp.ReasonCodes)
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, contracts.CheckDataQuality, resp.Checks[0].Name)

	rec = do(t, router, http.MethodGet, "/api/runs/missing/decision", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTrades(t *testing.T) {
	router, _ := newTestRouter(t, defaultRouterConfig())

	rec := do(t, router, http.MethodGet, "/api/runs/run-1/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.TradesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "AAA", resp.Trades[0].Symbol)
	assert.True(t, resp.Trades[0].NotionalBase.Equal(decimal.NewFromInt(700)))

	rec = do(t, router, http.MethodGet, "/api/runs/missing/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"trades":[]`)
}

func TestTickets(t *testing.T) {
	router, _ := newTestRouter(t, defaultRouterConfig())

	rec := do(t, router, http.MethodGet, "/api/tickets/t-trade", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.TicketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.Ticket.RunID)
	assert.Equal(t, 0, resp.ConfirmationsCount)
	assert.Empty(t, resp.Fills)

	rec = do(t, router, http.MethodGet, "/api/tickets/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/tickets?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(t, router, http.MethodGet, "/api/tickets?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitConfirmation_Fills(t *testing.T) {
	router, s := newTestRouter(t, defaultRouterConfig())

	body := `{
		"confirmation_type": "FILLS",
		"submitted_by": "ops-desk",
		"fills": [
			{"sequence": 1, "internal_symbol": "AAA", "side": "buy", "executed_status": "DONE",
			 "units": "7", "fill_price": "100.5", "filled_at": "2026-03-02T14:45:00Z"}
		]
	}`
	rec := do(t, router, http.MethodPost, "/api/tickets/t-trade/confirmations", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var receipt confirmation.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, "t-trade", receipt.TicketID)
	assert.Equal(t, 1, receipt.FillsCount)

	fills, err := s.ListFills(context.Background(), "t-trade")
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].ExecutedValueBase.Equal(decimal.RequireFromString("703.5")))

	ticket, err := s.GetTicket(context.Background(), "t-trade")
	require.NoError(t, err)
	assert.Equal(t, contracts.TicketStatusConfirmed, ticket.Status)
}

func TestSubmitConfirmation_Errors(t *testing.T) {
	tests := []struct {
		name     string
		ticketID string
		body     string
		want     int
	}{
		{"malformed body", "t-trade", `{`, http.StatusBadRequest},
		{"schema violation", "t-trade", `{"confirmation_type":"FILLS","fills":[{"sequence":0}]}`, http.StatusBadRequest},
		{"executed fill without filled_at", "t-trade", `{"confirmation_type":"FILLS","fills":[{"sequence":1,"internal_symbol":"AAA","side":"BUY","executed_status":"DONE","units":"1","fill_price":"1"}]}`, http.StatusBadRequest},
		{"unknown type", "t-trade", `{"confirmation_type":"MAYBE"}`, http.StatusBadRequest},
		{"ack on trade ticket", "t-trade", `{"confirmation_type":"ACK_NO_TRADE"}`, http.StatusConflict},
		{"unknown ticket", "nope", `{"confirmation_type":"ACK_NO_TRADE"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, s := newTestRouter(t, defaultRouterConfig())

			rec := do(t, router, http.MethodPost, "/api/tickets/"+tt.ticketID+"/confirmations", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			n, err := s.CountConfirmations(context.Background(), "t-trade")
			require.NoError(t, err)
			assert.Zero(t, n, "rejected submissions persist nothing")
		})
	}
}

func TestSubmitConfirmation_AckNoTrade(t *testing.T) {
	router, s := newTestRouter(t, defaultRouterConfig())

	rec := do(t, router, http.MethodPost, "/api/tickets/t-none/confirmations", `{"confirmation_type":"ACK_NO_TRADE","notes":"seen"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	n, err := s.CountConfirmations(context.Background(), "t-none")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRateLimit(t *testing.T) {
	router, _ := newTestRouter(t, RouterConfig{RateLimit: 0.001, RateBurst: 1})

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/runs/run-1/trades", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodGet, "/api/runs/run-1/trades", "").Code)

	// health 는 제한 대상 아님
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", "").Code)
}
