package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testSecret = []byte("test-secret")

func TestCors(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CORS(nextHandler)

	t.Run("OPTIONS request", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Normal request", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Custom origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		CORSFor("https://shop.example.com")(nextHandler).ServeHTTP(w, req)

		assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func TestAuth(t *testing.T) {
	mw := Auth(testSecret)

	t.Run("Missing Token", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := auth.FromContext(r.Context())
			assert.False(t, ok, "Context should not contain an identity")
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		w := httptest.NewRecorder()

		mw(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Invalid Token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		mw(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"invalid or expired token","code":"unauthorized"}`, w.Body.String())
	})

	t.Run("Valid Token", func(t *testing.T) {
		token := signed(t, jwt.MapClaims{
			"sub":  "admin-1",
			"role": "admin",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, "admin-1", id.CallerID)
			assert.True(t, id.IsOperator())
			w.WriteHeader(http.StatusOK)
		})

		mw(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Cookie Token", func(t *testing.T) {
		token := signed(t, jwt.MapClaims{"sub": "u-7", "exp": time.Now().Add(time.Hour).Unix()})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, auth.RoleCustomer, id.Role)
		})

		mw(next).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Expired Token", func(t *testing.T) {
		token := signed(t, jwt.MapClaims{
			"sub": "u-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		mw(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-1"}).
			SignedString([]byte("other"))
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		mw(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Basic user:pass")
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := auth.FromContext(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusOK)
		})

		mw(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("CheckoutUsesStrictTier", func(t *testing.T) {
		l := NewRateLimiter("")
		h := l.Middleware(ok)

		codes := map[int]int{}
		for i := 0; i < burstStrict+3; i++ {
			req := httptest.NewRequest(http.MethodPost, "/orders", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			codes[w.Code]++
		}
		assert.GreaterOrEqual(t, codes[http.StatusOK], burstStrict)
		assert.GreaterOrEqual(t, codes[http.StatusTooManyRequests], 1)

		// Browsing is a separate bucket.
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("InternalTier", func(t *testing.T) {
		l := NewRateLimiter("s3cret")
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.Header.Set("X-Service-Auth", "s3cret")
		limit, burst, tier := l.resolveRateTier(req)
		assert.Equal(t, "internal", tier)
		assert.Equal(t, limitInternal, limit)
		assert.Equal(t, burstInternal, burst)
	})

	t.Run("Tiers", func(t *testing.T) {
		l := NewRateLimiter("")

		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.Header.Set("X-Client-Type", "frontend-heavy")
		_, _, tier := l.resolveRateTier(req)
		assert.Equal(t, "frontend", tier)

		req = httptest.NewRequest(http.MethodGet, "/products", nil)
		_, _, tier = l.resolveRateTier(req)
		assert.Equal(t, "general", tier)
	})

	t.Run("IdentityKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.5:5555"
		assert.Equal(t, "ip:192.168.1.5", identityKey(req))

		req.Header.Set("X-Device-ID", "dev-1")
		assert.Equal(t, "device:dev-1", identityKey(req))

		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{CallerID: "42"}))
		assert.Equal(t, "user:42", identityKey(req))
	})

	t.Run("EvictIdle", func(t *testing.T) {
		l := NewRateLimiter("")
		now := time.Now()
		l.now = func() time.Time { return now }
		l.getVisitor("ip:1:general", limitGeneral, burstGeneral)

		now = now.Add(visitorIdleTimeout + time.Second)
		l.evictIdle()
		assert.Empty(t, l.visitors)
	})
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := logger.RequestIDMiddleware(Auth(testSecret)(Logging(next)))

	req := httptest.NewRequest("GET", "/products", nil)
	req.Header.Set(logger.RequestIDHeader, "rid-1")
	req.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{
		"sub": "u-9",
		"exp": time.Now().Add(time.Hour).Unix(),
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "HTTP request", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/products", fields["path"])
	assert.Equal(t, "rid-1", fields["request_id"])
	assert.Equal(t, "u-9", fields["caller_id"])
	assert.Equal(t, "customer", fields["role"])
}
