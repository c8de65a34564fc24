package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/access-assistant/backend/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if ip != "" {
		req.RemoteAddr = ip + ":1234"
	}
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandlerRecoversPanics(t *testing.T) {
	h := memory.New()
	r := gin.New()
	r.Use(ErrorHandler(&log.Logger{Handler: h, Level: log.DebugLevel}))
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := serve(r, http.MethodGet, "/boom", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"An unexpected error occurred"}`, w.Body.String())
	require.Len(t, h.Entries, 1)
	assert.Equal(t, "Panic recovered", h.Entries[0].Message)
	assert.Equal(t, "kaboom", h.Entries[0].Fields["panic"])
}

func TestRateLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }

	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/health", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/health", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/api/health", "10.0.0.1").Code)

	// Other clients have their own bucket
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/health", "10.0.0.2").Code)

	// Tokens refill over time
	fixed = fixed.Add(time.Second)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/health", "10.0.0.1").Code)
}

func TestRateLimitPrunesIdleClientsPeriodically(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.visitors["10.0.0.9"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: now.Add(-time.Hour)}
	rl.lastPrune = now.Add(-30 * time.Second)

	// Swept less than a minute ago, so the idle client survives
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.Len(t, rl.visitors, 2)

	now = now.Add(31 * time.Second)
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Len(t, rl.visitors, 2)
	assert.NotContains(t, rl.visitors, "10.0.0.9")
	assert.Equal(t, now, rl.lastPrune)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodOptions, "/api/health", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestStatsTracksAnalysisAndFixRequests(t *testing.T) {
	stats := logging.NewStatistics(t.TempDir(), false)

	r := gin.New()
	r.Use(Stats(stats))
	r.POST("/api/analyze", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/suggest-fix", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.POST("/api/documents/:id/issues/:issueId/fix", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodPost, "/api/analyze", "10.0.0.1")
	serve(r, http.MethodPost, "/api/suggest-fix", "10.0.0.2")
	serve(r, http.MethodPost, "/api/documents/d1/issues/i1/fix", "10.0.0.1")
	serve(r, http.MethodGet, "/api/health", "10.0.0.3")

	summary := stats.GetStatistics()
	assert.Equal(t, 1, summary["analysisRequests"])
	assert.Equal(t, 2, summary["fixRequests"])
	assert.Equal(t, 3, summary["uniqueVisitors24h"])
	assert.InDelta(t, 100.0/3, summary["errorRate"], 0.01)
}
