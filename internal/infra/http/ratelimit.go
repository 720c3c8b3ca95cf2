package http

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vermietify/internal/domain"
)

// Route ids group endpoints that share one request budget.
const (
	routeSubmissionsRead   = "submissions:read"
	routeSubmissionsWrite  = "submissions:write"
	routeSubmissionsAct    = "submissions:act"
	routeSubmissionsSubmit = "submissions:submit"
	routeAuditRead         = "audit:read"
	routeBackupsRead       = "backups:read"
	routeBackupsWrite      = "backups:write"
	routeQueuesRead        = "queues:read"
	routeBatch             = "batch"
	routeSweep             = "sweep"
)

// rateLimitKey scopes a budget to the route and, when configured, to the
// caller. Subjects are hashed so the limiter store never holds identities.
func (s *Server) rateLimitKey(routeID string, principal domain.Principal) string {
	key := "route:" + routeID
	if !s.rateLimitSubject || principal.Subject == "" {
		return key
	}
	sum := sha256.Sum256([]byte(principal.Subject))
	return key + ":sub:" + hex.EncodeToString(sum[:12])
}

func (s *Server) enforceRateLimit(c *gin.Context, routeID string, principal domain.Principal) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	decision, err := s.rateLimiter.Allow(c.Request.Context(), s.rateLimitKey(routeID, principal), s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		s.logger.Warn("rate limiter unavailable", zap.String("route", routeID), zap.Bool("fail_closed", s.rateLimitFailClosed), zap.Error(err))
		if s.rateLimitFailClosed {
			writeErrorCode(c, http.StatusServiceUnavailable, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		return true
	}

	c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
	if decision.Allowed {
		return true
	}
	wait := decision.RetryAfter(s.clock())
	c.Header("Retry-After", strconv.FormatInt(int64(wait.Seconds()), 10))
	writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
	return false
}
