package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mantica/blog/backend/go-services/pkg/metrics"
)

func hit(r *gin.Engine, path string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w.Code
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(10, 2))
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	allowed := metrics.RateLimitAllowed.WithLabelValues("memory")
	before := testutil.ToFloat64(allowed)

	require.Equal(t, http.StatusOK, hit(r, "/ok"))
	require.Equal(t, http.StatusOK, hit(r, "/ok"))
	require.Equal(t, 2.0, testutil.ToFloat64(allowed)-before)
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	// one token, refilled every ~17 minutes
	r.Use(RateLimitMiddleware(0.001, 1))
	r.GET("/limited", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	rejected := metrics.RateLimitRejected.WithLabelValues("memory")
	before := testutil.ToFloat64(rejected)

	require.Equal(t, http.StatusOK, hit(r, "/limited"))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/limited"))
	require.Equal(t, 1.0, testutil.ToFloat64(rejected)-before)
}

func TestRateLimitMiddleware_UsesSubjectWhenPresent(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if sub := c.Query("sub"); sub != "" {
			c.Set(ClaimsKey, map[string]interface{}{"sub": sub})
		}
		c.Next()
	})
	r.Use(RateLimitMiddleware(0.001, 1))
	r.GET("/u", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/u?sub=user-123"))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/u?sub=user-123"))
	// another subject behind the same address has its own bucket
	require.Equal(t, http.StatusOK, hit(r, "/u?sub=user-456"))
	require.Equal(t, http.StatusOK, hit(r, "/u"))
}
