package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func signed(t *testing.T, claims JWTClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func echoClaims(c *gin.Context) {
	claims := GetClaims(c)
	c.JSON(http.StatusOK, gin.H{"org": claims.OrganizationID, "role": claims.Role})
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	r := gin.New()
	r.GET("/x", JWTAuth(testSecret), echoClaims)
	org := uuid.NewString()
	valid := JWTClaims{
		OrganizationID: org,
		Role:           RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, valid, "other"), http.StatusUnauthorized},
		{"no organization", "Bearer " + signed(t, JWTClaims{Role: RoleAdmin}, testSecret), http.StatusUnauthorized},
		{"valid", "Bearer " + signed(t, valid, testSecret), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := do(r, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), org)
			}
		})
	}
}

func TestHeaderTenant(t *testing.T) {
	r := gin.New()
	r.GET("/x", HeaderTenant(), echoClaims)

	w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	org := uuid.NewString()
	req.Header.Set(OrganizationHeader, org)
	w = do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), org)
}

func TestRequireRole(t *testing.T) {
	withRole := func(role string) gin.HandlerFunc {
		return func(c *gin.Context) { c.Set(ClaimsKey, &JWTClaims{Role: role}) }
	}
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	for role, status := range map[string]int{
		RoleQuality:  http.StatusOK,
		RoleAdmin:    http.StatusOK,
		RoleOperator: http.StatusForbidden,
	} {
		r := gin.New()
		r.GET("/x", withRole(role), RequireRole(RoleQuality), ok)
		assert.Equal(t, status, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code, role)
	}

	r := gin.New()
	r.GET("/x", RequireRole(RoleQuality), ok)
	assert.Equal(t, http.StatusForbidden, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = do(r, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestErrorHandlerAndRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(), ErrorHandler())
	r.GET("/err", func(c *gin.Context) { _ = c.Error(errors.New("pq: connection reset")) })
	r.GET("/written", func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"detail": "x"})
		_ = c.Error(errors.New("logged only"))
	})
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := do(r, httptest.NewRequest(http.MethodGet, "/err", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")

	w = do(r, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimiter(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return clock }

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.False(t, ok)
	ok, _ = l.Allow("b")
	assert.True(t, ok, "limits are per client")

	clock = clock.Add(time.Minute + time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok, "a new window starts after the old one ends")
	assert.Len(t, l.clients, 1, "expired windows are swept")

	r := gin.New()
	limited := NewRateLimiter(1, time.Minute)
	r.GET("/x", limited.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

// Windows are fixed: the budget resets in full once the window that started
// with the client's first request ends, regardless of when inside it the
// requests were spent.
func TestRateLimiter_FixedWindow(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return clock }

	ok, end := l.Allow("a")
	require.True(t, ok)
	assert.Equal(t, start.Add(time.Minute), end)

	clock = start.Add(59 * time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, end = l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, start.Add(time.Minute), end, "late requests do not move the window")

	clock = start.Add(61 * time.Second)
	ok, end = l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.True(t, ok, "the full budget is available right after the window ends")
	assert.Equal(t, clock.Add(time.Minute), end)
}
