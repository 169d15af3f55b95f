package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextUploader is the gin context key carrying the authenticated
	// admin identity for audit attribution.
	ContextUploader = "uploader"

	RoleAdmin = "admin"
)

// AdminClaims is the token shape issued by the managed auth service.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func verifyToken(secret []byte, token string) (*AdminClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &AdminClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*AdminClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// RequireAdmin authenticates the bearer token and authorizes the caller
// as admin. Token issuance itself is delegated to the auth service.
func RequireAdmin(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "unauthorized",
				"message": "missing bearer token",
			})
			c.Abort()
			return
		}

		claims, err := verifyToken(secret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "unauthorized",
				"message": "invalid token",
			})
			c.Abort()
			return
		}

		if claims.Role != RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"code":    "forbidden",
				"message": "admin role required",
			})
			c.Abort()
			return
		}

		c.Set(ContextUploader, claims.Subject)
		c.Next()
	}
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
