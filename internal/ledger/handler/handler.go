// Package handler exposes the token ledger over HTTP. Every route requires a
// session token; the caller's account comes from the token, never the body.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nymreg/internal/platform/middleware"
	id "nymreg/pkg/domain"
	"nymreg/pkg/platform/httputil"
	"nymreg/pkg/requestcontext"
)

// Service is the ledger surface the handler needs.
type Service interface {
	Mint(ctx context.Context, caller id.Account, amount uint64) error
	Transfer(ctx context.Context, caller, to id.Account, amount uint64) error
	BalanceOf(ctx context.Context, caller id.Account) (uint64, error)
	TotalIssued(ctx context.Context) (uint64, error)
}

type Handler struct {
	logger    *slog.Logger
	ledger    Service
	validator middleware.TokenValidator
}

func New(ledger Service, validator middleware.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		ledger:    ledger,
		validator: validator,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/ledger/mint", h.handleMint)
		r.Post("/ledger/transfer", h.handleTransfer)
		r.Get("/ledger/balance", h.handleBalance)
		r.Get("/ledger/supply", h.handleSupply)
	})
}

type mintRequest struct {
	Amount uint64 `json:"amount"`
}

type transferRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type balanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

type supplyResponse struct {
	TotalIssued uint64 `json:"total_issued"`
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := requestcontext.Account(ctx)

	req, ok := httputil.DecodeAndPrepare[mintRequest](w, r, h.logger)
	if !ok {
		return
	}

	if err := h.ledger.Mint(ctx, account, req.Amount); err != nil {
		h.logger.WarnContext(ctx, "mint rejected",
			"request_id", requestcontext.RequestID(ctx),
			"account", account,
			"amount", req.Amount,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := requestcontext.Account(ctx)

	req, ok := httputil.DecodeAndPrepare[transferRequest](w, r, h.logger)
	if !ok {
		return
	}
	to, err := id.ParseAccount(req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.ledger.Transfer(ctx, account, to, req.Amount); err != nil {
		h.logger.WarnContext(ctx, "transfer rejected",
			"request_id", requestcontext.RequestID(ctx),
			"from", account,
			"to", to,
			"amount", req.Amount,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := requestcontext.Account(ctx)

	balance, err := h.ledger.BalanceOf(ctx, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, balanceResponse{
		Account: account.Hex(),
		Balance: balance,
	})
}

func (h *Handler) handleSupply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.ledger.TotalIssued(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, supplyResponse{TotalIssued: total})
}
