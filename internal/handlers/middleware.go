package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vaultsim/vaultd/internal/rate"
	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/libs/apikey"
	"github.com/vaultsim/vaultd/libs/auth"
)

const (
	contextWorkspaceIDKey = "workspace_id"
	headerAPIKey          = "X-API-Key"
)

// KeyStore resolves stored API keys by their public prefix.
type KeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*storage.APIKey, error)
}

// WorkspaceAuth authenticates a provider request by opaque API key or
// bearer token and puts the owning workspace id on the request context.
// Requests carrying neither credential are unauthorized.
func WorkspaceAuth(keys KeyStore, jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := strings.TrimSpace(c.GetHeader(headerAPIKey)); key != "" {
			wsID, ok := verifyAPIKey(c, keys, key)
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid api key"})
				return
			}
			c.Set(contextWorkspaceIDKey, wsID.String())
			c.Next()
			return
		}

		if token := auth.ExtractBearer(c.GetHeader("Authorization")); token != "" {
			claims, err := auth.ParseJWT(token, jwtSecret)
			if err != nil || claims.WorkspaceID == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid token"})
				return
			}
			c.Set(contextWorkspaceIDKey, claims.WorkspaceID)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing credentials"})
	}
}

func verifyAPIKey(c *gin.Context, keys KeyStore, key string) (uuid.UUID, bool) {
	_, prefix, _, err := apikey.Parse(key)
	if err != nil {
		return uuid.Nil, false
	}
	record, err := keys.GetAPIKeyByPrefix(c.Request.Context(), prefix)
	if err != nil {
		return uuid.Nil, false
	}
	wsID, err := apikey.Verify(key, apikey.Record{
		ID:          record.ID.String(),
		WorkspaceID: record.WorkspaceID.String(),
		KeyHash:     record.KeyHash,
		RevokedAt:   record.RevokedAt,
	})
	if err != nil {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(wsID)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

// OperatorAuth admits only bearer tokens carrying the operator role.
func OperatorAuth(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing credentials"})
			return
		}
		claims, err := auth.ParseJWT(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid token"})
			return
		}
		if !claims.HasRole(auth.RoleOperator) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "operator role required"})
			return
		}
		c.Next()
	}
}

// RateLimit applies a per-workspace (falling back to per-IP) request
// budget. Limiter errors fail open: an unreachable redis must not take the
// API down with it.
func RateLimit(limiter rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(contextWorkspaceIDKey)
		if key == "" {
			key = c.ClientIP()
		}
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), key, time.Now())
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Code: "RATE_LIMITED", Message: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func workspaceIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get(contextWorkspaceIDKey)
	if !ok {
		return uuid.Nil, false
	}
	raw, ok := val.(string)
	if !ok {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}
