package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/matcha-bookable/bookable-bot/pkg/jwt"
)

const operatorContextKey = "operator_context"

// OperatorContext holds the authenticated operator of an admin request
type OperatorContext struct {
	Operator string
	Roles    []string
	TokenID  string
}

// AuthMiddleware validates the operator token in the Authorization header
func AuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
				"code":    "MISSING_AUTH_HEADER",
			})
			c.Abort()
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header must be in the form 'Bearer <token>'",
				"code":    "INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateOperatorToken(token)
		if err != nil {
			code := "INVALID_TOKEN"
			message := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				code = "TOKEN_EXPIRED"
				message = "Token has expired"
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": message,
				"code":    code,
			})
			c.Abort()
			return
		}

		c.Set(operatorContextKey, &OperatorContext{
			Operator: claims.Operator,
			Roles:    claims.Roles,
			TokenID:  claims.ID,
		})
		c.Set("operator", claims.Operator)
		c.Next()
	}
}

// RequireRole rejects operators that hold none of the given roles.
// Must be used after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorCtx, exists := GetOperatorContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Operator context not found",
				"code":    "MISSING_OPERATOR_CONTEXT",
			})
			c.Abort()
			return
		}

		for _, have := range operatorCtx.Roles {
			for _, want := range roles {
				if have == want {
					c.Next()
					return
				}
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Insufficient permissions",
			"code":    "INSUFFICIENT_PERMISSIONS",
		})
		c.Abort()
	}
}

// GetOperatorContext returns the operator set by AuthMiddleware
func GetOperatorContext(c *gin.Context) (*OperatorContext, bool) {
	value, exists := c.Get(operatorContextKey)
	if !exists {
		return nil, false
	}
	operatorCtx, ok := value.(*OperatorContext)
	return operatorCtx, ok
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
