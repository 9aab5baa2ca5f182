package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bimasaputra/lendtrack/internal/config"
	"github.com/bimasaputra/lendtrack/internal/database"
	"github.com/bimasaputra/lendtrack/internal/dto"
	"github.com/bimasaputra/lendtrack/internal/engine"
	"github.com/bimasaputra/lendtrack/internal/handlers"
	"github.com/bimasaputra/lendtrack/internal/routes"
	"github.com/bimasaputra/lendtrack/internal/services"
)

type testServer struct {
	app *fiber.App
	db  *gorm.DB
	cfg *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.Models()...))

	cfg := &config.Config{
		JWTSecret:            "test-secret",
		JWTAccessExpiry:      15 * time.Minute,
		JWTRefreshExpiry:     24 * time.Hour,
		AdminEmail:           "admin@example.com",
		AdminPassword:        "correct horse",
		LateThresholdMinutes: 2880,
		BlockDurationMinutes: 1440,
		CORSOrigins:          "*",
	}

	policy := services.NewPolicyService(db, engine.Policy{
		LateThresholdMinutes: cfg.LateThresholdMinutes,
		BlockDurationMinutes: cfg.BlockDurationMinutes,
	})
	require.NoError(t, policy.Load())

	eng := engine.New(db, nil, policy, engine.Options{})

	auth := services.NewAuthService(db, cfg)
	require.NoError(t, auth.SeedAdmin())

	app := fiber.New()
	routes.Setup(app, cfg, db,
		handlers.NewScanHandler(eng),
		handlers.NewUserHandler(db, eng),
		handlers.NewTransactionHandler(db),
		handlers.NewStatsHandler(db),
		handlers.NewAuthHandler(auth),
		handlers.NewPolicyHandler(policy),
		handlers.NewHealthHandler(db, nil),
	)

	return &testServer{app: app, db: db, cfg: cfg}
}

func (s *testServer) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func (s *testServer) login(t *testing.T) *dto.AuthResponse {
	t.Helper()
	resp := s.request(t, http.MethodPost, "/api/auth/login", "", dto.LoginRequest{
		Email:    s.cfg.AdminEmail,
		Password: s.cfg.AdminPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.AuthResponse
	decodeBody(t, resp, &out)
	require.NotEmpty(t, out.AccessToken)
	return &out
}

func (s *testServer) register(t *testing.T, uid, name string) *engine.Outcome {
	t.Helper()
	resp := s.request(t, http.MethodPost, "/api/users", "", dto.RegisterUserRequest{
		UID: uid, Name: name,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out engine.Outcome
	decodeBody(t, resp, &out)
	return &out
}

func TestScanUnknownUID(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodPost, "/api/scan", "", dto.ScanRequest{UID: "04:aa:bb"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out engine.Outcome
	decodeBody(t, resp, &out)
	assert.Equal(t, engine.OutcomeRegisterRequired, out.Kind)
	assert.Equal(t, "04:AA:BB", out.UID)
}

func TestScanValidation(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodPost, "/api/scan", "", dto.ScanRequest{UID: "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	raw, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestRegisterThenScanReturns(t *testing.T) {
	s := newTestServer(t)

	reg := s.register(t, "ab12", "Rina")
	assert.Equal(t, engine.OutcomeBorrow, reg.Kind)
	require.NotNil(t, reg.User)
	assert.Equal(t, "AB12", reg.User.UID)
	assert.True(t, reg.User.CurrentlyBorrowing)

	resp := s.request(t, http.MethodPost, "/api/scan", "", dto.ScanRequest{UID: "AB12"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out engine.Outcome
	decodeBody(t, resp, &out)
	assert.Equal(t, engine.OutcomeReturn, out.Kind)
	assert.False(t, out.User.CurrentlyBorrowing)
	assert.Equal(t, 1, out.User.TotalReturned)
}

func TestRegisterDuplicateUID(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "AB12", "Rina")

	resp := s.request(t, http.MethodPost, "/api/users", "", dto.RegisterUserRequest{
		UID: "ab12", Name: "Other",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out dto.ErrorResponse
	decodeBody(t, resp, &out)
	assert.True(t, out.Error)
	assert.Contains(t, out.Message, "uid")
}

func TestUserListRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "AB12", "Rina")

	resp := s.request(t, http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := s.login(t).AccessToken
	resp = s.request(t, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out dto.UserListResponse
	decodeBody(t, resp, &out)
	require.Len(t, out.Users, 1)
	assert.Equal(t, "Rina", out.Users[0].Name)
}

func TestTransactionListFilterByUID(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "AB12", "Rina")
	s.register(t, "CD34", "Budi")
	token := s.login(t).AccessToken

	resp := s.request(t, http.MethodGet, "/api/transactions?uid=ab12", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out dto.TransactionListResponse
	decodeBody(t, resp, &out)
	require.Len(t, out.Transactions, 1)
	assert.Equal(t, "AB12", out.Transactions[0].UID)
}

func TestStatsDashboard(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "AB12", "Rina")
	s.register(t, "CD34", "Budi")
	// Close Rina's loan.
	resp := s.request(t, http.MethodPost, "/api/scan", "", dto.ScanRequest{UID: "AB12"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	token := s.login(t).AccessToken
	resp = s.request(t, http.MethodGet, "/api/stats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out dto.StatsResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, int64(2), out.Stats.TotalUsers)
	assert.Equal(t, int64(2), out.Stats.ActiveUsers)
	assert.Equal(t, int64(0), out.Stats.BlockedUsers)
	assert.Equal(t, int64(1), out.Stats.CurrentlyBorrowing)
	assert.Equal(t, int64(3), out.Stats.TotalTransactions)
	assert.Equal(t, int64(2), out.Stats.TotalBorrows)
	assert.Equal(t, int64(1), out.Stats.TotalReturns)
}

func TestPolicyGetAndUpdate(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t).AccessToken

	resp := s.request(t, http.MethodGet, "/api/policy", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pol engine.Policy
	decodeBody(t, resp, &pol)
	assert.Equal(t, 2880, pol.LateThresholdMinutes)
	assert.Equal(t, 1440, pol.BlockDurationMinutes)

	resp = s.request(t, http.MethodPut, "/api/admin/policy", token, engine.Policy{
		LateThresholdMinutes: 60,
		BlockDurationMinutes: 120,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &pol)
	assert.Equal(t, 60, pol.LateThresholdMinutes)
	assert.Equal(t, 120, pol.BlockDurationMinutes)

	resp = s.request(t, http.MethodPut, "/api/admin/policy", token, engine.Policy{
		LateThresholdMinutes: 0,
		BlockDurationMinutes: 120,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteUser(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "AB12", "Rina")
	token := s.login(t).AccessToken

	path := "/api/users/" + reg.User.ID.String()
	resp := s.request(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out dto.DeleteUserResponse
	decodeBody(t, resp, &out)
	assert.True(t, out.Success)
	assert.Equal(t, "AB12", out.Deleted.UID)

	resp = s.request(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUserExportCSV(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "AB12", "Rina")
	token := s.login(t).AccessToken

	resp := s.request(t, http.MethodGet, "/api/users/export", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Name,UID,Email"))
	assert.Contains(t, lines[1], "Rina,AB12")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodPost, "/api/auth/login", "", dto.LoginRequest{
		Email:    s.cfg.AdminEmail,
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefreshTokenRotation(t *testing.T) {
	s := newTestServer(t)
	first := s.login(t)

	resp := s.request(t, http.MethodPost, "/api/auth/refresh", "", dto.RefreshRequest{
		RefreshToken: first.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second dto.AuthResponse
	decodeBody(t, resp, &second)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated-out token is single-use.
	resp = s.request(t, http.MethodPost, "/api/auth/refresh", "", dto.RefreshRequest{
		RefreshToken: first.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out dto.HealthResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "ok", out.DB)
	assert.Equal(t, "disabled", out.Redis)
}
