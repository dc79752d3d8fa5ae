package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/refledger/internal/auth"
	"github.com/charlesng35/refledger/pkg/crypto"
	"github.com/charlesng35/refledger/pkg/errors"
	"github.com/charlesng35/refledger/pkg/response"
)

const (
	CtxClaimsKey   = "authClaims"
	CtxClientIDKey = "clientID"

	// WebhookSecretHeader carries the secret registered with setWebhook.
	WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxClientIDKey, claims.ClientID)

		c.Next()
	}
}

// RequireScope rejects requests whose token lacks scope. It must run after Auth.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get(CtxClaimsKey)
		claims, _ := value.(*iauth.Claims)
		if !ok || claims == nil {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.HasScope(scope) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// WebhookSecret rejects webhook deliveries that do not echo the configured secret.
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !crypto.EqualSecrets(secret, c.GetHeader(WebhookSecretHeader)) {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
