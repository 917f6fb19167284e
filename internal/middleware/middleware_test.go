package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"live_engagement/internal/repository"
	"live_engagement/internal/service"
	apperrors "live_engagement/pkg/errors"
	"live_engagement/pkg/logger"
)

const testSecret = "presenter-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims PresenterClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func presenterClaims(userID string, ttl time.Duration) PresenterClaims {
	return PresenterClaims{
		UserID:      userID,
		Email:       "host@example.com",
		DisplayName: "Host",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth-service",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func presenterRouter(m *PresenterAuthMiddleware) *gin.Engine {
	r := gin.New()
	r.GET("/state", m.RequirePresenter(), func(c *gin.Context) {
		c.String(http.StatusOK, PresenterID(c))
	})
	return r
}

func TestRequirePresenter(t *testing.T) {
	m := NewPresenterAuthMiddleware(testSecret, "auth-service", logger.Nop())
	r := presenterRouter(m)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{
			name:   "valid token",
			header: "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, presenterClaims("presenter-1", time.Hour)),
			status: http.StatusOK,
			body:   "presenter-1",
		},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Token abc", status: http.StatusUnauthorized},
		{
			name:   "expired",
			header: "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, presenterClaims("presenter-1", -time.Minute)),
			status: http.StatusUnauthorized,
		},
		{
			name:   "wrong secret",
			header: "Bearer " + signToken(t, "other", jwt.SigningMethodHS256, presenterClaims("presenter-1", time.Hour)),
			status: http.StatusUnauthorized,
		},
		{
			name:   "no user id",
			header: "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, presenterClaims("", time.Hour)),
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/state", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequirePresenterChecksIssuer(t *testing.T) {
	m := NewPresenterAuthMiddleware(testSecret, "another-issuer", logger.Nop())
	r := presenterRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.SigningMethodHS256, presenterClaims("presenter-1", time.Hour)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestParticipantMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(ParticipantMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, ParticipantID(c)) })

	known := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ParticipantHeader, known)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, known, w.Body.String())
	assert.Equal(t, known, w.Header().Get(ParticipantHeader))

	// Мусор в заголовке заменяется новым идентификатором
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ParticipantHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	_, err := uuid.Parse(w.Body.String())
	assert.NoError(t, err)
	assert.NotEqual(t, "not-a-uuid", w.Body.String())
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	limiter := NewRateLimitMiddleware(
		service.NewRateLimitService(repository.NewRateLimitRepository(rdb, logger.Nop()), logger.Nop()),
		logger.Nop(),
	)
	r := gin.New()
	r.POST("/messages", limiter.Limit("messages", 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	post := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/messages", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := post("10.0.0.1")
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusCreated, post("10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, post("10.0.0.1").Code)

	// Другой IP считается отдельно
	assert.Equal(t, http.StatusCreated, post("10.0.0.2").Code)

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusCreated, post("10.0.0.1").Code)
}

func TestErrorHandlerMapsErrors(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(logger.Nop()))
	r.GET("/missing", func(c *gin.Context) { _ = c.Error(fmt.Errorf("lookup: %w", apperrors.ErrSessionNotFound)) })
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(fmt.Errorf("pg: connection reset")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
