package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bankcards/internal/config"
	"bankcards/internal/handlers"
	"bankcards/internal/middleware"
	"bankcards/internal/repositories/memstore"
	"bankcards/internal/services/auth"
	"bankcards/internal/services/card"
	"bankcards/internal/services/transfer"
	"bankcards/internal/services/user"
	"bankcards/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	app   *fiber.App
	users user.Service
}

func newTestServer(t *testing.T, rl config.RateLimitConfig) *testServer {
	t.Helper()

	store := memstore.New()
	tokens, err := utils.NewTokenManager("test-secret", time.Minute, "bankcards-test")
	require.NoError(t, err)
	cipher, err := utils.NewPANCipher(utils.MustGenerateSecureKey(), utils.MustGenerateSecureKey())
	require.NoError(t, err)

	users := user.NewService(store, user.Config{BcryptCost: bcrypt.MinCost}, nil)
	cards := card.NewService(store, cipher, nil, card.Config{}, nil)
	transfers := transfer.NewService(store, nil, transfer.Config{}, nil, nil)
	authSvc := auth.NewService(users, store.Users(), tokens, int64(tokens.TTL().Seconds()), nil)

	opts := Options{AuthRateLimit: rl}
	app := NewApp(opts, nil)
	SetupRoutes(app, Handlers{
		Auth:     handlers.NewAuthHandler(authSvc),
		Cards:    handlers.NewCardHandler(cards),
		Transfer: handlers.NewTransferHandler(transfers),
		Admin:    handlers.NewAdminHandler(users),
		Health: handlers.NewHealthHandler(
			func(context.Context) error { return nil },
			func(context.Context) error { return errors.New("redis down") },
		),
		AuthMW: middleware.NewAuthMiddleware(tokens, store.Users(), nil),
	}, opts)

	return &testServer{app: app, users: users}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, body)
	return body["accessToken"].(string)
}

func (s *testServer) admin(t *testing.T) string {
	t.Helper()
	_, err := s.users.Create(context.Background(), user.CreateRequest{
		Username: "root",
		Password: "rootpassword",
		Roles:    []string{"ADMIN", "USER"},
	})
	require.NoError(t, err)
	return s.login(t, "root", "rootpassword")
}

func id(body map[string]interface{}) uint {
	return uint(body["id"].(float64))
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	status, body := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice",
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, []interface{}{"USER"}, body["roles"])

	status, body = srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice",
		"password": "password1",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["code"])

	status, body = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "/api/auth/login", body["path"])

	token := srv.login(t, "alice", "password1")
	status, body = srv.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["username"])
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{name: "no token", method: http.MethodGet, path: "/api/cards/my", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/api/transfers/my", token: "not-a-jwt", wantStatus: http.StatusUnauthorized},
		{name: "admin route without token", method: http.MethodGet, path: "/api/admin/users", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := srv.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, "UNAUTHORIZED", body["code"])
		})
	}
}

func TestAdminRoutesRejectUsers(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	_, err := srv.users.Create(context.Background(), user.CreateRequest{Username: "bob", Password: "password1"})
	require.NoError(t, err)
	token := srv.login(t, "bob", "password1")

	for _, path := range []string{"/api/admin/users", "/api/admin/cards", "/api/transfers"} {
		status, body := srv.do(t, http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusForbidden, status, path)
		assert.Equal(t, "FORBIDDEN", body["code"], path)
	}
}

func TestDisabledUserLosesAccess(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	adminToken := srv.admin(t)

	bob, err := srv.users.Create(context.Background(), user.CreateRequest{Username: "bob", Password: "password1"})
	require.NoError(t, err)
	token := srv.login(t, "bob", "password1")

	status, _ := srv.do(t, http.MethodPatch, fmt.Sprintf("/api/admin/users/%d/enabled", bob.ID), adminToken, map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, status)

	status, body := srv.do(t, http.MethodGet, "/api/cards/my", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestCardAndTransferFlow(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	adminToken := srv.admin(t)

	status, body := srv.do(t, http.MethodPost, "/api/admin/users", adminToken, map[string]interface{}{
		"username": "alice",
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, status, body)
	aliceID := id(body)
	token := srv.login(t, "alice", "password1")

	issue := func(pan string, balance int64) uint {
		status, body := srv.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/cards", aliceID), adminToken, map[string]interface{}{
			"pan":            pan,
			"expiry":         "2099-12",
			"initialBalance": balance,
		})
		require.Equal(t, http.StatusCreated, status, body)
		assert.Equal(t, "**** **** **** "+pan[len(pan)-4:], body["maskedNumber"])
		return id(body)
	}
	from := issue("4111 1111 1111 1111", 1000)
	to := issue("5555555555554444", 100)

	status, body = srv.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/cards", aliceID), adminToken, map[string]interface{}{
		"pan":    "4111111111111111",
		"expiry": "2099-12",
	})
	assert.Equal(t, http.StatusConflict, status, body)

	transferBody := map[string]interface{}{"fromCardId": from, "toCardId": to, "amount": 300}
	status, first := srv.do(t, http.MethodPost, "/api/transfers", token, transferBody, handlers.IdempotencyKeyHeader, "k-1")
	require.Equal(t, http.StatusCreated, status, first)
	assert.Equal(t, "COMPLETED", first["status"])

	status, replay := srv.do(t, http.MethodPost, "/api/transfers", token, transferBody, handlers.IdempotencyKeyHeader, "k-1")
	require.Equal(t, http.StatusCreated, status, replay)
	assert.Equal(t, first["id"], replay["id"])

	status, body = srv.do(t, http.MethodPost, "/api/transfers", token,
		map[string]interface{}{"fromCardId": from, "toCardId": to, "amount": 5}, handlers.IdempotencyKeyHeader, "k-1")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "IDEMPOTENCY_KEY_REUSED", body["code"])

	status, body = srv.do(t, http.MethodPost, "/api/transfers", token,
		map[string]interface{}{"fromCardId": from, "toCardId": to, "amount": 5000})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", body["code"])

	status, body = srv.do(t, http.MethodGet, "/api/cards/my?size=10", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["totalElements"])
	balances := map[uint]float64{}
	for _, raw := range body["content"].([]interface{}) {
		c := raw.(map[string]interface{})
		balances[id(c)] = c["balance"].(float64)
	}
	assert.Equal(t, map[uint]float64{from: 700, to: 400}, balances)

	status, body = srv.do(t, http.MethodGet, "/api/transfers/my", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["totalElements"])

	// Pending transfer, then cancel it.
	status, pending := srv.do(t, http.MethodPost, "/api/transfers", token,
		map[string]interface{}{"fromCardId": from, "toCardId": to, "amount": 50, "ttlSeconds": 600})
	require.Equal(t, http.StatusCreated, status, pending)
	assert.Equal(t, "PENDING", pending["status"])

	status, body = srv.do(t, http.MethodPost, fmt.Sprintf("/api/transfers/%d/cancel", id(pending)), token, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "CANCELED", body["status"])

	// Cards referenced by transfers cannot be deleted.
	status, body = srv.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/cards/%d", from), adminToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_STATE", body["code"])

	status, body = srv.do(t, http.MethodPost, fmt.Sprintf("/api/admin/cards/%d/block", to), adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "BLOCKED", body["status"])

	status, body = srv.do(t, http.MethodGet, "/api/admin/cards?status=blocked", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["totalElements"])

	status, body = srv.do(t, http.MethodGet, "/api/transfers", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["totalElements"])
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	_, err := srv.users.Create(context.Background(), user.CreateRequest{Username: "bob", Password: "password1"})
	require.NoError(t, err)
	token := srv.login(t, "bob", "password1")

	status, body := srv.do(t, http.MethodPost, "/api/transfers", token, map[string]interface{}{"amount": 10})
	assert.Equal(t, http.StatusBadRequest, status)
	fields := body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "fromCardId")
	assert.Contains(t, fields, "toCardId")

	status, body = srv.do(t, http.MethodPost, "/api/transfers/abc/cancel", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", body["code"])

	status, body = srv.do(t, http.MethodPost, "/api/transfers/999/cancel", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "TRANSFER_NOT_FOUND", body["code"])
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	status, body := srv.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestAuthRateLimit(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{Max: 2, Window: time.Minute})
	creds := map[string]string{"username": "ghost", "password": "password1"}

	for i := 0; i < 2; i++ {
		status, _ := srv.do(t, http.MethodPost, "/api/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, body := srv.do(t, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "TOO_MANY_REQUESTS", body["code"])
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, config.RateLimitConfig{})
	status, body := srv.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", body["status"])
	services := body["services"].(map[string]interface{})
	assert.Equal(t, "connected", services["database"])
	assert.Equal(t, "unreachable", services["redis"])
}
