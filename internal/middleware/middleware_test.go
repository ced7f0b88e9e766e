package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sarnabroker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func protectedEngine(roles ...string) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	chain := []gin.HandlerFunc{JWTAuth(testSecret)}
	if len(roles) > 0 {
		chain = append(chain, RequireRole(roles...))
	}
	chain = append(chain, func(c *gin.Context) {
		a := GetActor(c)
		c.JSON(http.StatusOK, gin.H{"owner": a.OwnerID().String(), "role": a.Role, "staff": a.IsStaff})
	})
	r.GET("/me", chain...)
	return r
}

func get(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth_MissingToken(t *testing.T) {
	w := get(protectedEngine(), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"detail":"authentication required"}`, w.Body.String())
}

func TestJWTAuth_BadSignatureAndExpiry(t *testing.T) {
	claims := JWTClaims{UserID: uuid.NewString(), Role: service.RoleBuyer}

	other, err := SignToken("another-secret", claims, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(protectedEngine(), other).Code)

	expired, err := SignToken(testSecret, claims, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(protectedEngine(), expired).Code)
}

func TestJWTAuth_RejectsNonHMAC(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{UserID: uuid.NewString(), Role: "admin"})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(protectedEngine(), s).Code)
}

func TestJWTAuth_StaffActsForOwner(t *testing.T) {
	owner := uuid.New()
	tok, err := SignToken(testSecret, JWTClaims{
		UserID: uuid.NewString(), Role: service.RoleMiller, IsStaff: true, OwnerID: owner.String(),
	}, time.Hour)
	require.NoError(t, err)

	w := get(protectedEngine(service.RoleMiller), tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"owner":"`+owner.String()+`","role":"miller","staff":true}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestJWTAuth_MalformedUserID(t *testing.T) {
	tok, err := SignToken(testSecret, JWTClaims{UserID: "nope", Role: service.RoleBuyer}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(protectedEngine(), tok).Code)
}

func TestRequireRole_Forbidden(t *testing.T) {
	tok, err := SignToken(testSecret, JWTClaims{UserID: uuid.NewString(), Role: service.RoleBuyer}, time.Hour)
	require.NoError(t, err)
	w := get(protectedEngine(service.RoleMiller, service.RoleAdmin), tok)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestID_EchoesCallerValue(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRecovery_HidesPanic(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(*gin.Context) { panic("secret internals") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestRateLimiter_WindowResets(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.allow("1.2.3.4")
	assert.False(t, ok)
	ok, _ = l.allow("5.6.7.8")
	assert.True(t, ok, "other clients have their own window")

	now = now.Add(61 * time.Second)
	ok, _ = l.allow("1.2.3.4")
	assert.True(t, ok)
	assert.Equal(t, 1, l.purge(), "5.6.7.8 window expired")
}

func TestRateLimiter_Middleware429(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)
	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
