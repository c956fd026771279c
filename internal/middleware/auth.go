package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Antonioedwardsd/devlab/internal/auth"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding the verified *auth.Claims.
const ClaimsKey = "auth_claims"

type claimsContextKey struct{}

// TokenVerifier is satisfied by *auth.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// Authenticate rejects requests without a valid bearer token with 401 and
// attaches the decoded claims to the request otherwise.
func Authenticate(verifier TokenVerifier, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		token, err := auth.TokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			logger.InfoContext(c.Request.Context(), "token rejected",
				"request_id", RequestIDFromContext(c),
				"reason", err.Error(),
			)
			unauthorized(c, "Invalid token")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), claimsContextKey{}, claims))
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "Unauthorized",
		"message": message,
	})
}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	if v, ok := c.Get(ClaimsKey); ok {
		claims, ok := v.(*auth.Claims)
		return claims, ok
	}
	return Claims(c.Request.Context())
}

// Claims reads the verified claims from a request context.
func Claims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims, ok
}
