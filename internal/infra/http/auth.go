package http

import (
	"errors"
	"net/http"
	"strings"

	"vermietify/internal/domain"
	"vermietify/internal/infra/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalContextKey = "principal"

// guard authenticates, authorizes and rate limits one route before the handler runs.
func (s *Server) guard(routeID, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		creds := domain.Credentials{
			BearerToken: extractBearerToken(c.GetHeader("Authorization")),
			Headers: map[string]string{
				auth.HeaderSubject: c.GetHeader(auth.HeaderSubject),
				auth.HeaderRoles:   c.GetHeader(auth.HeaderRoles),
				auth.HeaderScopes:  c.GetHeader(auth.HeaderScopes),
			},
		}
		principal, err := s.authenticator.Authenticate(c.Request.Context(), creds)
		if err != nil {
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication failed")
			c.Abort()
			return
		}
		if err := s.authorizer.Require(c.Request.Context(), principal, permission); err != nil {
			s.logger.Warn("denied",
				zap.String("subject", principal.Subject),
				zap.String("permission", permission),
				zap.Error(err),
			)
			writeAuthzError(c, err)
			c.Abort()
			return
		}
		if !s.enforceRateLimit(c, routeID, principal) {
			c.Abort()
			return
		}
		c.Set(principalContextKey, principal)
		c.Next()
	}
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

func getPrincipal(c *gin.Context) domain.Principal {
	raw, ok := c.Get(principalContextKey)
	if !ok {
		return domain.Principal{}
	}
	principal, _ := raw.(domain.Principal)
	return principal
}

func writeAuthzError(c *gin.Context, err error) {
	if authz, ok := domain.IsAuthzError(err); ok {
		writeErrorCode(c, http.StatusForbidden, authz.Code, "forbidden")
		return
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	if errors.Is(err, domain.ErrForbidden) {
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
		return
	}
	writeError(c, err)
}
