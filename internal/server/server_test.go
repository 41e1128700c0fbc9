package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dphuang2/browser-record-app/pkg/auth"
	"github.com/dphuang2/browser-record-app/pkg/chunk"
	"github.com/dphuang2/browser-record-app/pkg/customer"
	"github.com/dphuang2/browser-record-app/pkg/health"
	"github.com/dphuang2/browser-record-app/pkg/replay"
)

const (
	testShop = "shop.myshopify.com"
	mobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	srv       *Server
	chunks    *chunk.MemoryStore
	customers *customer.MemoryStore
	auth      *auth.Manager
	health    *health.Checker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	chunks := chunk.NewMemoryStore()
	customers := customer.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	aggregator := replay.NewAggregator(chunks, customers, replay.WithLogger(logger))
	manager, err := auth.NewManager([]byte("test-secret"), time.Minute)
	require.NoError(t, err)
	checker := health.NewChecker()

	srv := New(Options{
		Chunks:      chunks,
		Customers:   customers,
		Coordinator: replay.NewCoordinator(customers, aggregator, logger),
		Auth:        manager,
		Health:      checker,
		Logger:      logger,
	})
	return &testServer{srv: srv, chunks: chunks, customers: customers, auth: manager, health: checker}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) token(t *testing.T, shop string) string {
	t.Helper()
	token, err := ts.auth.Generate(shop)
	require.NoError(t, err)
	return token
}

func uploadBody(shop, sessionID string, timestamp int64) string {
	return fmt.Sprintf(`{
		"shop": %q,
		"id": %q,
		"timestamp": %d,
		"events": [
			{"type": 2, "data": {"href": "https://shop.example/"}, "timestamp": %d},
			{"type": 3, "data": {"source": 2, "type": 2}, "timestamp": %d}
		],
		"lastTotalCartPrice": 2599,
		"lastItemCount": 2
	}`, shop, sessionID, timestamp, timestamp, timestamp+5000)
}

func (ts *testServer) upload(t *testing.T, sessionID string, timestamp int64) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(uploadBody(testShop, sessionID, timestamp)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", mobileUA)
	w := ts.do(req)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "sess-1", 1000)

	assert.Equal(t, 1, ts.chunks.Len())

	c, err := ts.customers.Get(t.Context(), testShop, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, c.Stale)
	assert.Equal(t, "mobile", c.Device)
	assert.Equal(t, "Safari", c.Browser)
	require.NotNil(t, c.LastTotalCartPrice)
	assert.Equal(t, int64(2599), *c.LastTotalCartPrice)
}

func TestUploadMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing shop", `{"id": "sess-1", "timestamp": 100, "events": [{"type": 2, "timestamp": 100}]}`},
		{"missing events", fmt.Sprintf(`{"shop": %q, "id": "sess-1", "timestamp": 100}`, testShop)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := ts.do(req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Equal(t, 0, ts.chunks.Len())
}

func listRequest(token, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/shop/"+testShop+query, http.NoBody)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
	}
	return req
}

func TestListReplays(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "sess-1", 1000)

	w := ts.do(listRequest(ts.token(t, testShop), ""))
	require.Equal(t, http.StatusOK, w.Code)

	var listing replay.Listing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing.Customers, 1)
	assert.Equal(t, "sess-1", listing.Customers[0].SessionID)
	assert.NotEmpty(t, listing.Customers[0].URL)
	assert.Equal(t, int64(2599), listing.MaxTotalCartPrice)
}

func TestListReplaysEmptyShop(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(listRequest(ts.token(t, testShop), ""))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestListReplaysBadFilters(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "sess-1", 1000)

	w := ts.do(listRequest(ts.token(t, testShop), "?filters=%7B%22bogusFilter%22%3A1%7D"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListReplaysAppliesFilters(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "sess-1", 1000)

	// deviceFilter=["desktop"] excludes the mobile session.
	w := ts.do(listRequest(ts.token(t, testShop), "?filters=%7B%22deviceFilter%22%3A%5B%22desktop%22%5D%7D"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestListReplaysAuth(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "sess-1", 1000)

	t.Run("no token", func(t *testing.T) {
		w := ts.do(listRequest("", ""))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token for another shop", func(t *testing.T) {
		w := ts.do(listRequest(ts.token(t, "other.myshopify.com"), ""))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := ts.do(listRequest("not-a-token", ""))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/shop/"+testShop, http.NoBody)
		req.Header.Set("Authorization", "Bearer "+ts.token(t, testShop))
		w := ts.do(req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCustomerReplay(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "sess-1", 1000)

	req := httptest.NewRequest(http.MethodGet,
		"/api/sessions/shop/"+testShop+"/customer/sess-1", http.NoBody)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: ts.token(t, testShop)})
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), chunk.ArtifactKey(testShop, "sess-1"))
}

func TestCustomerReplayUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/sessions/shop/"+testShop+"/customer/missing", http.NoBody)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: ts.token(t, testShop)})
	w := ts.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "not ready until marked")

	ts.health.SetReady()
	w = ts.do(httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
}
