package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"nymreg/internal/access"
	"nymreg/internal/events"
	eventsmem "nymreg/internal/events/store/memory"
	jwttoken "nymreg/internal/jwt_token"
	registrysvc "nymreg/internal/registry/service"
	registrymem "nymreg/internal/registry/store/memory"
	"nymreg/internal/secrets"
	id "nymreg/pkg/domain"
)

const bootstrapSecret = "admin-bootstrap-secret"

type fixture struct {
	router chi.Router
	jwts   *jwttoken.JWTService
	ctrl   *access.Controller
	reg    *registrysvc.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	admin, _ := id.ParseAccount("0x00000000000000000000000000000000000000ad")
	ctrl := access.New(admin)

	publisher := events.New(eventsmem.New(), events.WithLogger(logger))
	reg, err := registrysvc.New(registrymem.New(), ctrl,
		registrysvc.WithLogger(logger),
		registrysvc.WithEvents(publisher),
		registrysvc.WithVerifier(func(id.Account, id.Nullifier, []byte) error { return nil }),
	)
	if err != nil {
		t.Fatalf("build registry service: %v", err)
	}

	hash, err := secrets.Hash(bootstrapSecret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}

	jwts := jwttoken.NewJWTService("handler-test-key", "nymreg", "nymreg-api")
	router := chi.NewRouter()
	New(reg, ctrl, jwts, jwttoken.NewJWTServiceAdapter(jwts), hash, logger,
		WithEventLog(publisher),
	).Register(router)
	return &fixture{router: router, jwts: jwts, ctrl: ctrl, reg: reg}
}

func (f *fixture) postJSON(path, token string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) adminToken(t *testing.T) string {
	t.Helper()
	rec := f.postJSON("/admin/token", "", map[string]string{"secret": bootstrapSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 issuing admin token, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	return resp.AccessToken
}

func TestTokenIssue(t *testing.T) {
	f := newFixture(t)

	t.Run("correct secret", func(t *testing.T) {
		token := f.adminToken(t)
		claims, err := f.jwts.ValidateToken(token)
		if err != nil {
			t.Fatalf("validate issued token: %v", err)
		}
		if !claims.Admin {
			t.Fatalf("expected admin claim set")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		rec := f.postJSON("/admin/token", "", map[string]string{"secret": "guess"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for wrong secret, got %d", rec.Code)
		}
	})
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	f := newFixture(t)

	var userAcct id.Account
	userAcct[19] = 1
	userToken, err := f.jwts.GenerateAccessToken(userAcct, false, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	for _, path := range []string{"/admin/recover", "/admin/pause", "/admin/unpause", "/admin/transfer"} {
		if rec := f.postJSON(path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s without token, got %d", path, rec.Code)
		}
		if rec := f.postJSON(path, userToken, nil); rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for %s with session token, got %d", path, rec.Code)
		}
	}
}

func TestPauseUnpause(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken(t)

	if rec := f.postJSON("/admin/pause", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 pausing, got %d", rec.Code)
	}
	if !f.ctrl.Paused() {
		t.Fatalf("expected controller paused")
	}

	if rec := f.postJSON("/admin/unpause", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 unpausing, got %d", rec.Code)
	}
	if f.ctrl.Paused() {
		t.Fatalf("expected controller unpaused")
	}
}

func TestRecover(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken(t)

	var user id.Account
	user[19] = 1
	var n1, n2 id.Nullifier
	n1[31] = 1
	n2[31] = 2
	if err := f.reg.Register(context.Background(), user, n1, nil); err != nil {
		t.Fatalf("register user: %v", err)
	}

	rec := f.postJSON("/admin/recover", token, map[string]string{
		"account":   user.Hex(),
		"nullifier": n2.Hex(),
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 recovering, got %d: %s", rec.Code, rec.Body.String())
	}

	current, err := f.reg.CurrentNullifier(context.Background(), user)
	if err != nil {
		t.Fatalf("current nullifier: %v", err)
	}
	if current != n2 {
		t.Fatalf("expected recovered nullifier %s, got %s", n2.Hex(), current.Hex())
	}

	t.Run("unregistered target", func(t *testing.T) {
		var stranger id.Account
		stranger[19] = 9
		rec := f.postJSON("/admin/recover", token, map[string]string{
			"account":   stranger.Hex(),
			"nullifier": n1.Hex(),
		})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for unregistered target, got %d", rec.Code)
		}
	})
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken(t)

	var alice, bob id.Account
	alice[19] = 1
	bob[19] = 2
	var n1, n2 id.Nullifier
	n1[31] = 1
	n2[31] = 2
	if err := f.reg.Register(context.Background(), alice, n1, nil); err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if err := f.reg.Register(context.Background(), bob, n2, nil); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	getEvents := func(t *testing.T, path, token string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) []events.Event {
		t.Helper()
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 listing events, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Events []events.Event `json:"events"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode event list: %v", err)
		}
		return resp.Events
	}

	t.Run("recent", func(t *testing.T) {
		listed := decode(t, getEvents(t, "/admin/events", token))
		if len(listed) != 2 {
			t.Fatalf("expected 2 events, got %d", len(listed))
		}
	})

	t.Run("by account", func(t *testing.T) {
		listed := decode(t, getEvents(t, "/admin/events?account="+alice.Hex(), token))
		if len(listed) != 1 {
			t.Fatalf("expected 1 event for alice, got %d", len(listed))
		}
		if listed[0].Type != events.TypeUserRegistered {
			t.Fatalf("expected user_registered, got %s", listed[0].Type)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		if rec := getEvents(t, "/admin/events?limit=zero", token); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
		}
	})

	t.Run("administrator only", func(t *testing.T) {
		if rec := getEvents(t, "/admin/events", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without token, got %d", rec.Code)
		}
	})
}

func TestTransferAdmin(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken(t)

	var next id.Account
	next[19] = 7
	rec := f.postJSON("/admin/transfer", token, map[string]string{"new_admin": next.Hex()})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 transferring admin, got %d", rec.Code)
	}
	if f.ctrl.Admin() != next {
		t.Fatalf("expected new administrator %s, got %s", next.Hex(), f.ctrl.Admin().Hex())
	}

	// The old administrator's token still authenticates, but the controller
	// no longer recognizes the account; a fresh recover is refused.
	var user id.Account
	user[19] = 1
	var n id.Nullifier
	n[31] = 1
	if err := f.reg.Register(context.Background(), user, n, nil); err != nil {
		t.Fatalf("register user: %v", err)
	}
	var n2 id.Nullifier
	n2[31] = 2
	staleRec := f.postJSON("/admin/recover", token, map[string]string{
		"account":   user.Hex(),
		"nullifier": n2.Hex(),
	})
	if staleRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stale administrator token, got %d", staleRec.Code)
	}
}
