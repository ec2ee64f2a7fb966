package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/resumekit/entitled/internal/clock"
	"github.com/resumekit/entitled/internal/config"
	entitlementservice "github.com/resumekit/entitled/internal/entitlement/service"
	"github.com/resumekit/entitled/internal/flags"
	ledgerdomain "github.com/resumekit/entitled/internal/ledger/domain"
	ledgerrepo "github.com/resumekit/entitled/internal/ledger/repository"
	ledgerservice "github.com/resumekit/entitled/internal/ledger/service"
	obsmetrics "github.com/resumekit/entitled/internal/observability/metrics"
	"github.com/resumekit/entitled/internal/plan"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupServer(t *testing.T, flagCfg config.FlagConfig) (*Server, *clock.FakeClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.AutoMigrate(&ledgerdomain.UsageCounter{}, &ledgerdomain.CapacitySnapshot{}); err != nil {
		t.Fatal(err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{Flags: flagCfg, StoreTimeoutMillis: 2000}
	log := zap.NewNop()
	catalog := plan.NewCatalog()
	httpMetrics := obsmetrics.New()

	ledgerSvc := ledgerservice.New(ledgerservice.ServiceParam{
		Config: cfg,
		Log:    log,
		Repo:   ledgerrepo.Provide(conn, node),
	})

	fake := clock.NewFakeClock(time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	engineSvc := entitlementservice.New(entitlementservice.ServiceParam{
		Log:     log,
		Catalog: catalog,
		Flags:   flags.FromConfig(cfg),
		Ledger:  ledgerSvc,
		Clock:   fake,
		Metrics: httpMetrics,
	})

	router := NewEngine(cfg, log, httpMetrics)
	s := NewServer(ServerParam{
		Router:  router,
		Log:     log,
		Catalog: catalog,
		Engine:  engineSvc,
		Ledger:  ledgerSvc,
		Metrics: httpMetrics,
	})
	return s, fake
}

func doJSON(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v: %s", err, w.Body.String())
	}
	return body.Data
}

func TestAuthorizeEndpointRateFlow(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{})

	for i := 1; i <= 2; i++ {
		w := doJSON(s, http.MethodPost, "/v1/authorize", gin.H{
			"account_id": "acct-1",
			"plan":       "free",
			"resource":   "pdf_exports",
		})
		assert.Equal(t, http.StatusOK, w.Code)

		data := decodeData(t, w)
		assert.Equal(t, true, data["allowed"])
		assert.Equal(t, "ok", data["reason"])
		assert.Equal(t, float64(i), data["current"])
	}

	w := doJSON(s, http.MethodPost, "/v1/authorize", gin.H{
		"account_id": "acct-1",
		"plan":       "free",
		"resource":   "pdf_exports",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, false, data["allowed"])
	assert.Equal(t, "rate_exceeded", data["reason"])
	assert.Equal(t, float64(2), data["limit"])
	assert.Equal(t, float64(2), data["current"])
}

func TestAuthorizeEndpointUnknownPlan(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{})

	w := doJSON(s, http.MethodPost, "/v1/authorize", gin.H{
		"account_id": "acct-1",
		"plan":       "enterprise",
		"resource":   "pdf_exports",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizeEndpointMissingAccount(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{})

	w := doJSON(s, http.MethodPost, "/v1/authorize", gin.H{
		"plan":     "free",
		"resource": "pdf_exports",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizeEndpointGlobalFlag(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{DisableAISuggestions: true})

	w := doJSON(s, http.MethodPost, "/v1/authorize", gin.H{
		"account_id": "acct-1",
		"plan":       "pro",
		"resource":   "ai_suggestions",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, false, data["allowed"])
	assert.Equal(t, "globally_disabled", data["reason"])
}

func TestCapacityReportAndSummary(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{})

	w := doJSON(s, http.MethodPut, "/v1/accounts/acct-1/capacity/resumes", gin.H{"total": 2})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(s, http.MethodGet, "/v1/accounts/acct-1/usage?plan=free", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "2024-06", data["period"])

	resources, ok := data["resources"].(map[string]any)
	assert.True(t, ok)
	resumes, ok := resources["resumes"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, float64(2), resumes["used"])
	assert.Equal(t, float64(3), resumes["limit"])
}

func TestCapacityReportRejectsRateResource(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{})

	w := doJSON(s, http.MethodPut, "/v1/accounts/acct-1/capacity/pdf_exports", gin.H{"total": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCapacityReportRejectsNegativeTotal(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{})

	w := doJSON(s, http.MethodPut, "/v1/accounts/acct-1/capacity/resumes", gin.H{"total": -3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsageSummaryIsReadOnly(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{})

	doJSON(s, http.MethodPost, "/v1/authorize", gin.H{
		"account_id": "acct-1",
		"plan":       "free",
		"resource":   "pdf_exports",
	})

	for i := 0; i < 3; i++ {
		w := doJSON(s, http.MethodGet, "/v1/accounts/acct-1/usage?plan=free", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		data := decodeData(t, w)
		resources := data["resources"].(map[string]any)
		exports := resources["pdf_exports"].(map[string]any)
		assert.Equal(t, float64(1), exports["used"])
	}
}

func TestUsageHistoryEndpoint(t *testing.T) {
	s, fake := setupServer(t, config.FlagConfig{})

	for _, month := range []time.Month{time.May, time.June} {
		fake.Set(time.Date(2024, month, 5, 0, 0, 0, 0, time.UTC))
		doJSON(s, http.MethodPost, "/v1/authorize", gin.H{
			"account_id": "acct-1",
			"plan":       "free",
			"resource":   "pdf_exports",
		})
	}

	w := doJSON(s, http.MethodGet, "/v1/accounts/acct-1/usage/history?page_size=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, true, data["has_more"])
	entries := data["entries"].([]any)
	assert.Len(t, entries, 1)
	first := entries[0].(map[string]any)
	assert.Equal(t, "2024-06", first["period"])

	token := data["next_page_token"].(string)
	w = doJSON(s, http.MethodGet, fmt.Sprintf("/v1/accounts/acct-1/usage/history?page_size=1&page_token=%s", token), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data = decodeData(t, w)
	entries = data["entries"].([]any)
	assert.Len(t, entries, 1)
	first = entries[0].(map[string]any)
	assert.Equal(t, "2024-05", first["period"])
}

func TestUsageHistoryInvalidToken(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{})

	w := doJSON(s, http.MethodGet, "/v1/accounts/acct-1/usage/history?page_token=%21%21not-base64", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{})

	w := doJSON(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := setupServer(t, config.FlagConfig{})

	doJSON(s, http.MethodPost, "/v1/authorize", gin.H{
		"account_id": "acct-1",
		"plan":       "free",
		"resource":   "pdf_exports",
	})

	w := doJSON(s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "entitled_authorize_verdicts_total")
}
