package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/optiview/adminrelay/internal/admin"
	"github.com/optiview/adminrelay/internal/cache"
	"github.com/optiview/adminrelay/internal/config"
	"github.com/optiview/adminrelay/internal/engine"
	"github.com/optiview/adminrelay/internal/events"
	"github.com/optiview/adminrelay/internal/models"
	"github.com/optiview/adminrelay/internal/quota"
	"github.com/optiview/adminrelay/internal/ratelimit"
	"github.com/optiview/adminrelay/internal/scheduler"
)

// fakeExec records the remote calls the routed batches produce.
type fakeExec struct {
	mu      sync.Mutex
	deletes []string
	creates []string
}

func (f *fakeExec) Create(ctx context.Context, path string, body any) (*admin.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, path)
	return &admin.Resource{Name: path + "/1", DisplayName: "created"}, nil
}

func (f *fakeExec) Update(ctx context.Context, name string, body any, mask []string) (*admin.Resource, error) {
	return &admin.Resource{Name: name}, nil
}

func (f *fakeExec) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, name)
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeExec, *quota.Ledger) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	ledger, err := quota.NewLedger(db)
	require.NoError(t, err)

	log := zerolog.Nop()
	store, err := cache.Open(cache.Options{InMemory: true}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := events.NewEventBus(64)
	t.Cleanup(bus.Close)

	cfg := config.Default()
	cfg.RateLimit.TokensPerSecond = 10000
	cfg.RateLimit.Burst = 10000
	cfg.RateLimit.WaitTimeout = time.Second

	exec := &fakeExec{}
	eng := engine.New(exec, ledger,
		ratelimit.NewStore(cfg.RateLimit.TokensPerSecond, cfg.RateLimit.Burst),
		scheduler.New(8),
		cache.NewGateway(store, bus, log),
		cfg, log)

	return New(cfg, eng, log), exec, ledger
}

func setTier(t *testing.T, ledger *quota.Ledger, user, feature string, creates, deletes int64) {
	t.Helper()
	_, err := ledger.SetTier(context.Background(), quota.TierLimit{
		UserID: user, Feature: feature,
		CreateLimit: creates, DeleteLimit: deletes,
	})
	require.NoError(t, err)
}

func doJSON(t *testing.T, s *Server, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestMissingUserIdentityRejected(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/audiences/bulk-create", "", `{"forms":[]}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsExposed(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBulkCreateAudiences(t *testing.T) {
	s, exec, ledger := newTestServer(t)
	setTier(t, ledger, "u1", models.FeatureAudience, 10, 0)

	body := `{"forms":[{"property":"properties/123","displayName":"A","description":"d","membershipDurationDays":30}]}`
	w := doJSON(t, s, http.MethodPost, "/api/v1/audiences/bulk-create", "u1", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Success)
	assert.Equal(t, []string{"properties/123/audiences"}, exec.creates)
}

func TestBulkDeleteByNames(t *testing.T) {
	s, exec, ledger := newTestServer(t)
	setTier(t, ledger, "u1", models.FeatureAudience, 0, 10)

	body := `{"names":["properties/123/audiences/1","properties/123/audiences/2"]}`
	w := doJSON(t, s, http.MethodPost, "/api/v1/audiences/bulk-delete", "u1", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.ElementsMatch(t, []string{
		"properties/123/audiences/1",
		"properties/123/audiences/2",
	}, exec.deletes)
}

func TestMalformedPayloadRejected(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/audiences/bulk-create", "u1", `{"forms": "nope"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuotaRejectionMapsToForbidden(t *testing.T) {
	s, exec, ledger := newTestServer(t)
	setTier(t, ledger, "u1", models.FeatureAudience, 0, 0)

	body := `{"forms":[{"property":"properties/123","displayName":"A","description":"d","membershipDurationDays":30}]}`
	w := doJSON(t, s, http.MethodPost, "/api/v1/audiences/bulk-create", "u1", body)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, exec.creates)
}

func TestNoTierMapsToUnprocessable(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := `{"forms":[{"property":"properties/123","displayName":"A","description":"d","membershipDurationDays":30}]}`
	w := doJSON(t, s, http.MethodPost, "/api/v1/audiences/bulk-create", "u1", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRequestIdHeaderEchoed(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-Id"))

	// Absent inbound id gets a generated one.
	w2 := doJSON(t, s, http.MethodGet, "/healthz", "", "")
	assert.NotEmpty(t, w2.Header().Get("X-Request-Id"))
}

func TestAllResourceRoutesRegistered(t *testing.T) {
	s, _, _ := newTestServer(t)

	resources := []string{"accounts", "properties", "datastreams", "audiences", "custommetrics", "keyevents", "advertiserlinks"}
	for _, res := range resources {
		for _, op := range []string{"bulk-create", "bulk-update", "bulk-delete"} {
			w := doJSON(t, s, http.MethodPost, "/api/v1/"+res+"/"+op, "u1", `{"forms":[],"names":[]}`)
			assert.NotEqual(t, http.StatusNotFound, w.Code, "%s/%s missing", res, op)
		}
	}
}
