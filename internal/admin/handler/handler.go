// Package handler exposes the administrator surface: token issue against the
// bootstrap secret, lost-nullifier recovery, pause control and administrator
// hand-over.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"nymreg/internal/access"
	"nymreg/internal/events"
	"nymreg/internal/platform/middleware"
	"nymreg/internal/registry/metrics"
	"nymreg/internal/secrets"
	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
	"nymreg/pkg/platform/httputil"
	"nymreg/pkg/requestcontext"
)

// DefaultAdminTTL bounds an administrator token's lifetime. Shorter than
// session tokens: admin tokens gate privileged operations.
const DefaultAdminTTL = 15 * time.Minute

// Registry is the recovery surface the administrator needs.
type Registry interface {
	AdminRecover(ctx context.Context, actor, account id.Account, newNullifier id.Nullifier) error
}

// TokenIssuer mints administrator tokens after the bootstrap secret checks out.
type TokenIssuer interface {
	GenerateAccessToken(account id.Account, admin bool, expiresIn time.Duration) (string, error)
}

// EventLog is the read side of the notification record, for audit queries.
type EventLog interface {
	ListByAccount(ctx context.Context, account id.Account) ([]events.Event, error)
	ListRecent(ctx context.Context, limit int) ([]events.Event, error)
}

type Handler struct {
	logger     *slog.Logger
	registry   Registry
	ctrl       *access.Controller
	tokens     TokenIssuer
	validator  middleware.TokenValidator
	metrics    *metrics.Metrics
	eventLog   EventLog
	secretHash string
	adminTTL   time.Duration
}

type Option func(*Handler)

func WithAdminTTL(ttl time.Duration) Option {
	return func(h *Handler) {
		h.adminTTL = ttl
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithEventLog exposes the notification record at GET /admin/events.
func WithEventLog(log EventLog) Option {
	return func(h *Handler) {
		h.eventLog = log
	}
}

// New creates the administrator handler. secretHash is the bcrypt hash of the
// bootstrap secret; the plaintext never reaches the process.
func New(registry Registry, ctrl *access.Controller, tokens TokenIssuer, validator middleware.TokenValidator, secretHash string, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:     logger,
		registry:   registry,
		ctrl:       ctrl,
		tokens:     tokens,
		validator:  validator,
		secretHash: secretHash,
		adminTTL:   DefaultAdminTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/token", h.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Use(middleware.RequireAdmin(h.logger))
		r.Post("/admin/recover", h.handleRecover)
		r.Post("/admin/pause", h.handlePause)
		r.Post("/admin/unpause", h.handleUnpause)
		r.Post("/admin/transfer", h.handleTransferAdmin)
		if h.eventLog != nil {
			r.Get("/admin/events", h.handleEvents)
		}
	})
}

type tokenRequest struct {
	Secret string `json:"secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type recoverRequest struct {
	Account   string `json:"account"`
	Nullifier string `json:"nullifier"`
}

type transferAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[tokenRequest](w, r, h.logger)
	if !ok {
		return
	}

	if err := secrets.Verify(req.Secret, h.secretHash); err != nil {
		h.logger.WarnContext(ctx, "administrator token refused",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid secret"))
		return
	}

	token, err := h.tokens.GenerateAccessToken(h.ctrl.Admin(), true, h.adminTTL)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue administrator token",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to issue token"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.adminTTL.Seconds()),
	})
}

func (h *Handler) handleRecover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Account(ctx)

	req, ok := httputil.DecodeAndPrepare[recoverRequest](w, r, h.logger)
	if !ok {
		return
	}
	account, err := id.ParseAccount(req.Account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	nullifier, err := id.ParseNullifier(req.Nullifier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.registry.AdminRecover(ctx, actor, account, nullifier); err != nil {
		h.logger.WarnContext(ctx, "recovery rejected",
			"request_id", requestcontext.RequestID(ctx),
			"actor", actor,
			"account", account,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	ctx := r.Context()
	actor := requestcontext.Account(ctx)

	var err error
	if paused {
		err = h.ctrl.Pause(actor)
	} else {
		err = h.ctrl.Unpause(actor)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.metrics.SetPaused(paused)
	h.logger.InfoContext(ctx, "pause flag changed",
		"request_id", requestcontext.RequestID(ctx),
		"actor", actor,
		"paused", paused,
	)
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents lists the notification record: the whole history of one
// account when ?account= is given, otherwise the most recent events.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		listed []events.Event
		err    error
	)
	if raw := r.URL.Query().Get("account"); raw != "" {
		var account id.Account
		if account, err = id.ParseAccount(raw); err != nil {
			httputil.WriteError(w, err)
			return
		}
		listed, err = h.eventLog.ListByAccount(ctx, account)
	} else {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 1 {
				httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
				return
			}
		}
		listed, err = h.eventLog.ListRecent(ctx, limit)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "event listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list events"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": listed})
}

func (h *Handler) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Account(ctx)

	req, ok := httputil.DecodeAndPrepare[transferAdminRequest](w, r, h.logger)
	if !ok {
		return
	}
	newAdmin, err := id.ParseAccount(req.NewAdmin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.ctrl.TransferAdmin(actor, newAdmin); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "administrator transferred",
		"request_id", requestcontext.RequestID(ctx),
		"actor", actor,
		"new_admin", newAdmin,
	)
	w.WriteHeader(http.StatusNoContent)
}
