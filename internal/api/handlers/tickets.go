package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/tradeops/backend/internal/confirmation"
	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/pkg/logger"
)

const maxConfirmationBody = 1 << 20

// TicketReader is the read side of tickets and their confirmations
type TicketReader interface {
	GetTicket(ctx context.Context, ticketID string) (*contracts.Ticket, error)
	ListTickets(ctx context.Context, limit int) ([]contracts.Ticket, error)
	ListFills(ctx context.Context, ticketID string) ([]contracts.ConfirmedFill, error)
	CountConfirmations(ctx context.Context, ticketID string) (int, error)
}

// Submitter records operator confirmations
type Submitter interface {
	Submit(ctx context.Context, sub confirmation.Submission) (*confirmation.Receipt, error)
}

// TicketHandler handles ticket and confirmation endpoints
type TicketHandler struct {
	store     TicketReader
	submitter Submitter
	logger    *logger.Logger
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(store TicketReader, submitter Submitter, log *logger.Logger) *TicketHandler {
	return &TicketHandler{
		store:     store,
		submitter: submitter,
		logger:    log,
	}
}

// TicketResponse is a ticket with its confirmation state
type TicketResponse struct {
	Ticket             *contracts.Ticket         `json:"ticket"`
	ConfirmationsCount int                       `json:"confirmations_count"`
	Fills              []contracts.ConfirmedFill `json:"fills"`
}

// ListTickets returns the most recent tickets
// GET /api/tickets?limit=20
func (h *TicketHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be an integer in [1, 500]")
			return
		}
		limit = n
	}

	tickets, err := h.store.ListTickets(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list tickets")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve tickets")
		return
	}
	if tickets == nil {
		tickets = []contracts.Ticket{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(tickets),
		"tickets": tickets,
	})
}

// GetTicket returns a ticket with its confirmations and fills
// GET /api/tickets/{ticket_id}
func (h *TicketHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticketID := mux.Vars(r)["ticket_id"]

	ticket, err := h.store.GetTicket(ctx, ticketID)
	if errors.Is(err, contracts.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("ticket_id", ticketID).Error("Failed to get ticket")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve ticket")
		return
	}

	count, err := h.store.CountConfirmations(ctx, ticketID)
	if err != nil {
		h.logger.WithError(err).WithField("ticket_id", ticketID).Error("Failed to count confirmations")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve confirmations")
		return
	}
	fills, err := h.store.ListFills(ctx, ticketID)
	if err != nil {
		h.logger.WithError(err).WithField("ticket_id", ticketID).Error("Failed to list fills")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve fills")
		return
	}
	if fills == nil {
		fills = []contracts.ConfirmedFill{}
	}

	respondJSON(w, http.StatusOK, TicketResponse{
		Ticket:             ticket,
		ConfirmationsCount: count,
		Fills:              fills,
	})
}

// ConfirmationRequest is the body of a confirmation submission
type ConfirmationRequest struct {
	ConfirmationType contracts.ConfirmationType `json:"confirmation_type"`
	SubmittedBy      string                     `json:"submitted_by"`
	Notes            string                     `json:"notes"`
	Fills            json.RawMessage            `json:"fills,omitempty"`
}

// SubmitConfirmation records fills or a NO_TRADE acknowledgment for a ticket
// POST /api/tickets/{ticket_id}/confirmations
func (h *TicketHandler) SubmitConfirmation(w http.ResponseWriter, r *http.Request) {
	ticketID := mux.Vars(r)["ticket_id"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfirmationBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req ConfirmationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub := confirmation.Submission{
		TicketID:    ticketID,
		Type:        req.ConfirmationType,
		SubmittedBy: req.SubmittedBy,
		Notes:       req.Notes,
	}
	// fills 가 있으면 스키마 검증 (ACK_NO_TRADE 는 비어 있어야 함)
	if len(req.Fills) > 0 && string(req.Fills) != "null" {
		fills, err := confirmation.ParseFills(req.Fills)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		sub.Fills = fills
	}

	receipt, err := h.submitter.Submit(r.Context(), sub)
	if err != nil {
		var verr *confirmation.ValidationError
		switch {
		case errors.As(err, &verr):
			respondError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, confirmation.ErrTicketNotFound):
			respondError(w, http.StatusNotFound, "Ticket not found")
		case errors.Is(err, confirmation.ErrTicketTypeMismatch):
			respondError(w, http.StatusConflict, err.Error())
		default:
			h.logger.WithError(err).WithField("ticket_id", ticketID).Error("Failed to submit confirmation")
			respondError(w, http.StatusInternalServerError, "Failed to submit confirmation")
		}
		return
	}

	respondJSON(w, http.StatusCreated, receipt)
}
