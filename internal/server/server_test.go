package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/metrics"
	"bondingCurve/internal/model"
	"bondingCurve/internal/settlement"
	"bondingCurve/internal/storage/memory"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	m := metrics.New("curve_test", prometheus.NewRegistry())
	coord := settlement.NewCoordinator(settlement.Config{
		Defaults: settlement.PoolDefaults{
			MaxSupply:   fixedpoint.FromUint64(1_000_000),
			FundingGoal: fixedpoint.FromUint64(100_000_000),
			BasePrice:   fixedpoint.FromUint64(30_000),
			Steepness:   fixedpoint.MustParse("0.000001"),
		},
		Metrics: m,
	}, memory.NewStore(), zaptest.NewLogger(t))
	return New(Config{Addr: ":0"}, coord, m, zaptest.NewLogger(t)).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createPool(t *testing.T, h http.Handler) model.Pool {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/pools", `{"asset":"0x1111111111111111111111111111111111111111"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p model.Pool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.NotEmpty(t, p.ID)
	return p
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateAndGetPool(t *testing.T) {
	h := newTestServer(t)
	p := createPool(t, h)
	assert.Equal(t, model.StateFunding, p.State)

	rec := do(t, h, http.MethodGet, "/api/pools/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, p.ID, body["id"])
	assert.Equal(t, "30000", body["spot_price"])
	assert.Equal(t, "0", body["supply"])
}

func TestGetUnknownPool(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/api/pools/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"POOL_NOT_FOUND"`)
}

func TestCreatePoolRejectsBadCurve(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/api/pools",
		`{"asset":"0x1111111111111111111111111111111111111111","steepness":"1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"INVALID_CURVE"`)
}

func TestSubmitTradeAndReplay(t *testing.T) {
	h := newTestServer(t)
	p := createPool(t, h)
	path := "/api/pools/" + p.ID + "/trades"
	key := map[string]string{"Idempotency-Key": "k-1"}

	rec := do(t, h, http.MethodPost, path, `{"direction":"buy","amount":"1000"}`, key)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first model.TradeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.True(t, first.Accepted)
	assert.Equal(t, fixedpoint.FromUint64(1000), first.NewSupply)
	assert.Equal(t, uint64(1), first.Sequence)

	rec = do(t, h, http.MethodPost, path, `{"direction":"buy","amount":"1000"}`, key)
	require.Equal(t, http.StatusOK, rec.Code)
	var again model.TradeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, first, again)

	rec = do(t, h, http.MethodPost, path, `{"direction":"buy","amount":"5"}`, key)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"IDEMPOTENCY_MISMATCH"`)

	rec = do(t, h, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []model.TradeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "k-1", trades[0].IdempotencyKey)
}

func TestSubmitTradeKeyFromBody(t *testing.T) {
	h := newTestServer(t)
	p := createPool(t, h)
	rec := do(t, h, http.MethodPost, "/api/pools/"+p.ID+"/trades",
		`{"direction":"buy","amount":"1","idempotency_key":"body-key"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubmitTradeRequiresKey(t *testing.T) {
	h := newTestServer(t)
	p := createPool(t, h)
	rec := do(t, h, http.MethodPost, "/api/pools/"+p.ID+"/trades", `{"direction":"buy","amount":"1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTradeRejections(t *testing.T) {
	h := newTestServer(t)
	p := createPool(t, h)
	path := "/api/pools/" + p.ID + "/trades"

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"zero amount", `{"direction":"buy","amount":"0"}`, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"over max supply", `{"direction":"buy","amount":"1000001"}`, http.StatusUnprocessableEntity, "EXCEEDS_MAX_SUPPLY"},
		{"slippage", `{"direction":"buy","amount":"1000","limit":"1"}`, http.StatusUnprocessableEntity, "SLIPPAGE_EXCEEDED"},
		{"oversell", `{"direction":"sell","amount":"1"}`, http.StatusBadRequest, "INVALID_AMOUNT"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := map[string]string{"Idempotency-Key": "reject-" + string(rune('a'+i))}
			rec := do(t, h, http.MethodPost, path, tt.body, key)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"code":"`+tt.code+`"`)
		})
	}

	rec := do(t, h, http.MethodPost, path, `{"direction":"buy","amount":"1","payload":"zz"}`,
		map[string]string{"Idempotency-Key": "bad-payload"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTradeRejectsUnknownDirection(t *testing.T) {
	h := newTestServer(t)
	p := createPool(t, h)
	rec := do(t, h, http.MethodPost, "/api/pools/"+p.ID+"/trades", `{"direction":"x1","amount":"1"}`,
		map[string]string{"Idempotency-Key": "bogus-direction"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `direction="x1"`)
}

func TestQuote(t *testing.T) {
	h := newTestServer(t)
	p := createPool(t, h)
	base := "/api/pools/" + p.ID + "/quote"

	rec := do(t, h, http.MethodGet, base+"?direction=buy&amount=1000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var q model.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.True(t, strings.HasPrefix(q.CounterAmount.String(), "30015005.00"), q.CounterAmount.String())

	rec = do(t, h, http.MethodGet, base+"?budget=30000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, model.Buy, q.Direction)
	assert.False(t, q.CounterAmount.GreaterThan(fixedpoint.FromUint64(30_000)))

	rec = do(t, h, http.MethodGet, base+"?direction=hold&amount=1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLaunchBeforeGoal(t *testing.T) {
	h := newTestServer(t)
	p := createPool(t, h)
	rec := do(t, h, http.MethodPost, "/api/pools/"+p.ID+"/launch", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"NOT_READY_FOR_LAUNCH"`)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)
	createPool(t, h)
	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "curve_test_pools_created_total")
}
