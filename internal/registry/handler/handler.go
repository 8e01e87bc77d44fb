// Package handler exposes the identity registry over HTTP. Register proves
// key ownership with the submitted signature and answers with a session token;
// every other route requires that token.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"nymreg/internal/platform/middleware"
	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
	"nymreg/pkg/platform/httputil"
	"nymreg/pkg/requestcontext"
)

// DefaultSessionTTL bounds a session token's lifetime.
const DefaultSessionTTL = time.Hour

// Service is the registry surface the handler needs.
type Service interface {
	Register(ctx context.Context, caller id.Account, nullifier id.Nullifier, sig []byte) error
	ReLogin(ctx context.Context, caller id.Account, newNullifier id.Nullifier, sig []byte) error
	Logout(ctx context.Context, caller id.Account) error
	CurrentNullifier(ctx context.Context, caller id.Account) (id.Nullifier, error)
}

// TokenIssuer mints session tokens once ownership has been proven.
type TokenIssuer interface {
	GenerateAccessToken(account id.Account, admin bool, expiresIn time.Duration) (string, error)
}

type Handler struct {
	logger     *slog.Logger
	registry   Service
	tokens     TokenIssuer
	validator  middleware.TokenValidator
	sessionTTL time.Duration
}

type Option func(*Handler)

// WithSessionTTL overrides the issued token lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(h *Handler) {
		h.sessionTTL = ttl
	}
}

func New(registry Service, tokens TokenIssuer, validator middleware.TokenValidator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:     logger,
		registry:   registry,
		tokens:     tokens,
		validator:  validator,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the registry routes on r. The caller is expected to have
// request-ID, logging and recovery middleware already applied at the router
// root.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registry/register", h.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/registry/relogin", h.handleReLogin)
		r.Post("/registry/logout", h.handleLogout)
		r.Get("/registry/nullifier", h.handleCurrentNullifier)
	})
}

type registerRequest struct {
	Account   string `json:"account"`
	Nullifier string `json:"nullifier"`
	Signature string `json:"signature"`
}

type reloginRequest struct {
	Nullifier string `json:"nullifier"`
	Signature string `json:"signature"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type nullifierResponse struct {
	Account   string `json:"account"`
	Nullifier string `json:"nullifier"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[registerRequest](w, r, h.logger)
	if !ok {
		return
	}

	account, err := id.ParseAccount(req.Account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	nullifier, sig, ok := h.parseProof(w, req.Nullifier, req.Signature)
	if !ok {
		return
	}

	if err := h.registry.Register(ctx, account, nullifier, sig); err != nil {
		h.logger.WarnContext(ctx, "registration rejected",
			"request_id", requestcontext.RequestID(ctx),
			"account", account,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	h.writeToken(ctx, w, account)
}

func (h *Handler) handleReLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := requestcontext.Account(ctx)

	req, ok := httputil.DecodeAndPrepare[reloginRequest](w, r, h.logger)
	if !ok {
		return
	}
	nullifier, sig, ok := h.parseProof(w, req.Nullifier, req.Signature)
	if !ok {
		return
	}

	if err := h.registry.ReLogin(ctx, account, nullifier, sig); err != nil {
		h.logger.WarnContext(ctx, "re-login rejected",
			"request_id", requestcontext.RequestID(ctx),
			"account", account,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	h.writeToken(ctx, w, account)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := requestcontext.Account(ctx)

	if err := h.registry.Logout(ctx, account); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCurrentNullifier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := requestcontext.Account(ctx)

	nullifier, err := h.registry.CurrentNullifier(ctx, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, nullifierResponse{
		Account:   account.Hex(),
		Nullifier: nullifier.Hex(),
	})
}

func (h *Handler) parseProof(w http.ResponseWriter, nullifierHex, sigHex string) (id.Nullifier, []byte, bool) {
	nullifier, err := id.ParseNullifier(nullifierHex)
	if err != nil {
		httputil.WriteError(w, err)
		return id.Nullifier{}, nil, false
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "signature must be 0x-prefixed hex"))
		return id.Nullifier{}, nil, false
	}
	return nullifier, sig, true
}

func (h *Handler) writeToken(ctx context.Context, w http.ResponseWriter, account id.Account) {
	token, err := h.tokens.GenerateAccessToken(account, false, h.sessionTTL)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue session token",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to issue session token"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.sessionTTL.Seconds()),
	})
}
