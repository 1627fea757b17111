package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/verification-service/pkg/util"
)

const callerKey = "auth_caller"

// ServiceAuth validates bearer service tokens on webhook routes.
type ServiceAuth struct {
	tokens *TokenManager
}

// NewServiceAuth constructs middleware.
func NewServiceAuth(tokens *TokenManager) *ServiceAuth {
	return &ServiceAuth{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *ServiceAuth) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(callerKey, claims.Service)
	return c.Next()
}

// CallerFromContext returns the authenticated service name.
func CallerFromContext(c *fiber.Ctx) (string, bool) {
	val := c.Locals(callerKey)
	if val == nil {
		return "", false
	}
	caller, ok := val.(string)
	return caller, ok
}
