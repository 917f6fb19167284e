package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"live_engagement/pkg/logger"
)

// PresenterIDKey - ключ контекста gin с идентификатором ведущего из токена
const PresenterIDKey = "presenter_id"

// PresenterAuthMiddleware валидирует JWT ведущего, выпущенные внешним Auth-сервисом
type PresenterAuthMiddleware struct {
	jwtSecret []byte
	issuer    string
	log       logger.Logger
}

// PresenterClaims - claims от Auth-сервиса; user_id сверяется с владельцем сессии
type PresenterClaims struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

func NewPresenterAuthMiddleware(jwtSecret, issuer string, log logger.Logger) *PresenterAuthMiddleware {
	return &PresenterAuthMiddleware{
		jwtSecret: []byte(jwtSecret),
		issuer:    issuer,
		log:       log,
	}
}

// RequirePresenter пропускает только запросы с валидным Bearer-токеном
func (m *PresenterAuthMiddleware) RequirePresenter() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := m.parseToken(parts[1])
		if err != nil {
			m.log.Warn("Presenter token rejected", "error", err.Error(), "client_ip", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}
		if claims.UserID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has no user"})
			c.Abort()
			return
		}

		c.Set(PresenterIDKey, claims.UserID)
		c.Next()
	}
}

func (m *PresenterAuthMiddleware) parseToken(tokenString string) (*PresenterClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &PresenterClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*PresenterClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token claims")
}

// PresenterID достает идентификатор ведущего, положенный RequirePresenter
func PresenterID(c *gin.Context) string {
	return c.GetString(PresenterIDKey)
}
