package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rewardledger/internal/clock"
	"rewardledger/internal/config"
	"rewardledger/internal/repository/memory"
	"rewardledger/internal/service"
	"rewardledger/internal/subscription"
	"rewardledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	subs   *subscription.MemoryProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.LedgerConfig{
		AdRewardUnits:     2,
		DefaultGrantHours: 24,
		MaxGrantHours:     72,
		Features:          map[string]int64{"analytics": 5, "bulk_export": 8},
	}
	store := memory.NewStore()
	subs := subscription.NewMemoryProvider()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	ledger := service.NewLedger(store, subs, service.WithClock(clk), service.WithRetry(1, time.Millisecond))
	gate := service.NewGate(store, subs, clk)
	ads := service.NewAdRewardService(ledger, service.NewMemoryDeduper(time.Hour, clk), cfg.AdRewardUnits, zerolog.Nop())

	h := NewHandler(ledger, gate, ads, cfg, zerolog.Nop())
	return &testServer{router: SetupRouter(h, zerolog.Nop()), subs: subs}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestAdRewardSpendAndCheckFlow(t *testing.T) {
	s := newTestServer(t)

	for _, id := range []string{"evt-1", "evt-2"} {
		_, env := s.do(t, http.MethodPost, "/api/v1/rewards/ad-complete", gin.H{"account_id": "A", "ad_event_id": id})
		require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	}

	_, env := s.do(t, http.MethodPost, "/api/v1/rewards/ad-complete", gin.H{"account_id": "A", "ad_event_id": "evt-1"})
	assert.Equal(t, response.CodeDuplicateAdEvent, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/v1/units/spend", gin.H{"account_id": "A", "feature": "Analytics"})
	require.Equal(t, response.CodeInsufficientBalance, env.Code)
	var failure ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &failure))
	assert.Equal(t, service.KindInsufficientBalance, failure.Kind)
	require.NotNil(t, failure.Details)
	assert.Equal(t, ShortfallDetails{Have: 4, Needed: 5}, *failure.Details)

	_, env = s.do(t, http.MethodPost, "/api/v1/units/earn", gin.H{"account_id": "A", "amount": 1})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	_, env = s.do(t, http.MethodPost, "/api/v1/units/spend", gin.H{"account_id": "A", "feature": "Analytics"})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var spent struct {
		Balance   int64     `json:"balance"`
		Feature   string    `json:"feature"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &spent))
	assert.Equal(t, int64(0), spent.Balance)
	assert.Equal(t, "analytics", spent.Feature)

	_, env = s.do(t, http.MethodGet, "/api/v1/features/check?account_id=A&feature=analytics", nil)
	require.Equal(t, response.CodeSuccess, env.Code)
	var access service.Access
	require.NoError(t, json.Unmarshal(env.Data, &access))
	assert.True(t, access.Granted)
	assert.Equal(t, service.ReasonTemporaryGrant, access.Reason)
	require.NotNil(t, access.Until)
	assert.True(t, access.Until.Equal(spent.ExpiresAt))

	_, env = s.do(t, http.MethodGet, "/api/v1/units/transactions?account_id=A", nil)
	require.Equal(t, response.CodeSuccess, env.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(4), page.Total)
}

func TestSpendBySubscriberIsAlreadyEntitled(t *testing.T) {
	s := newTestServer(t)
	s.subs.Set("A", nil)

	_, env := s.do(t, http.MethodPost, "/api/v1/units/spend", gin.H{"account_id": "A", "feature": "analytics"})
	require.Equal(t, response.CodeAlreadyEntitled, env.Code)
	var failure ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &failure))
	assert.Equal(t, service.KindAlreadyEntitled, failure.Kind)
	assert.Nil(t, failure.Details)

	_, env = s.do(t, http.MethodGet, "/api/v1/features/check?account_id=A&feature=anything", nil)
	var access service.Access
	require.NoError(t, json.Unmarshal(env.Data, &access))
	assert.Equal(t, service.ReasonSubscription, access.Reason)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"earn zero", http.MethodPost, "/api/v1/units/earn", gin.H{"account_id": "A", "amount": 0}, response.CodeInvalidAmount},
		{"earn negative", http.MethodPost, "/api/v1/units/earn", gin.H{"account_id": "A", "amount": -2}, response.CodeInvalidAmount},
		{"earn without account", http.MethodPost, "/api/v1/units/earn", gin.H{"amount": 2}, response.CodeInvalidAmount},
		{"spend zero hours", http.MethodPost, "/api/v1/units/spend", gin.H{"account_id": "A", "feature": "analytics", "grant_hours": 0}, response.CodeInvalidAmount},
		{"spend hours above max", http.MethodPost, "/api/v1/units/spend", gin.H{"account_id": "A", "feature": "analytics", "grant_hours": 73}, response.CodeInvalidAmount},
		{"spend hours past duration range", http.MethodPost, "/api/v1/units/spend", gin.H{"account_id": "A", "feature": "analytics", "grant_hours": 5124096}, response.CodeInvalidAmount},
		{"spend unknown feature", http.MethodPost, "/api/v1/units/spend", gin.H{"account_id": "A", "feature": "teleport"}, response.CodeUnknownFeature},
		{"ad without event", http.MethodPost, "/api/v1/rewards/ad-complete", gin.H{"account_id": "A"}, response.CodeInvalidAmount},
		{"balance without account", http.MethodGet, "/api/v1/units/balance", nil, response.CodeInvalidAmount},
		{"check without feature", http.MethodGet, "/api/v1/features/check?account_id=A", nil, response.CodeInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, env := s.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.code, env.Code, env.Message)
		})
	}

	_, env := s.do(t, http.MethodGet, "/api/v1/units/balance?account_id=A", nil)
	require.Equal(t, response.CodeSuccess, env.Code)
	assert.JSONEq(t, `{"account_id":"A","balance":0}`, string(env.Data))
}

func TestSpendHonoursGrantHours(t *testing.T) {
	s := newTestServer(t)
	_, env := s.do(t, http.MethodPost, "/api/v1/units/earn", gin.H{"account_id": "A", "amount": 5})
	require.Equal(t, response.CodeSuccess, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/v1/units/spend", gin.H{"account_id": "A", "feature": "analytics", "grant_hours": 2})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var spent struct {
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &spent))
	assert.True(t, spent.ExpiresAt.Equal(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)))
}

func TestListFeaturesSorted(t *testing.T) {
	s := newTestServer(t)
	_, env := s.do(t, http.MethodGet, "/api/v1/features", nil)
	require.Equal(t, response.CodeSuccess, env.Code)

	var body struct {
		Features      []FeatureCost `json:"features"`
		AdRewardUnits int64         `json:"ad_reward_units"`
		MaxGrantHours int           `json:"max_grant_hours"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, []FeatureCost{{"analytics", 5}, {"bulk_export", 8}}, body.Features)
	assert.Equal(t, int64(2), body.AdRewardUnits)
	assert.Equal(t, 72, body.MaxGrantHours)
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec, _ = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rewardledger_http_requests_total")

	rec, _ = s.do(t, http.MethodOptions, "/api/v1/units/spend", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, env := s.do(t, http.MethodGet, "/api/v1/units/nope", nil)
	assert.Equal(t, response.CodeNotFound, env.Code)
	assert.Contains(t, env.Message, "/api/v1/units/nope")
}

func TestSpendRejectsOversizedGrantWithoutDebit(t *testing.T) {
	s := newTestServer(t)
	_, env := s.do(t, http.MethodPost, "/api/v1/units/earn", gin.H{"account_id": "A", "amount": 5})
	require.Equal(t, response.CodeSuccess, env.Code)

	for _, hours := range []int{73, 1000000, 2600000, 5124096} {
		_, env = s.do(t, http.MethodPost, "/api/v1/units/spend", gin.H{"account_id": "A", "feature": "analytics", "grant_hours": hours})
		require.Equal(t, response.CodeInvalidAmount, env.Code, "grant_hours=%d", hours)
		var failure ErrorPayload
		require.NoError(t, json.Unmarshal(env.Data, &failure))
		assert.Contains(t, failure.Message, "between 1 and 72")
	}

	_, env = s.do(t, http.MethodGet, "/api/v1/units/balance?account_id=A", nil)
	require.Equal(t, response.CodeSuccess, env.Code)
	assert.JSONEq(t, `{"account_id":"A","balance":5}`, string(env.Data))

	_, env = s.do(t, http.MethodPost, "/api/v1/units/spend", gin.H{"account_id": "A", "feature": "analytics", "grant_hours": 72})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var spent struct {
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &spent))
	assert.True(t, spent.ExpiresAt.Equal(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)))
}
