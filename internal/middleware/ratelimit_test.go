package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func limitedRouter(rps int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(rps).Limit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r *gin.Engine, ip string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_BurstThenThrottle(t *testing.T) {
	r := limitedRouter(1) // burst of 2

	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, "10.0.0.1"))
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	r := limitedRouter(1)

	for i := 0; i < 3; i++ {
		doRequest(r, "10.0.0.1")
	}
	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.2"),
		"one noisy client must not throttle another")
}

func TestRateLimiter_SweepDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")

	rl.mu.Lock()
	rl.clients["10.0.0.1"].lastSeen = time.Now().Add(-2 * limiterTTL)
	rl.mu.Unlock()

	rl.sweepOnce(time.Now().Add(-limiterTTL))

	rl.mu.Lock()
	remaining := len(rl.clients)
	rl.mu.Unlock()
	assert.Equal(t, 1, remaining, "idle clients must be evicted, active ones kept")
}
