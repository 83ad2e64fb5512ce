package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"idcard/internal/auth"
)

type fakeValidator map[string]*auth.TokenClaims

func (f fakeValidator) ValidateToken(token string) (*auth.TokenClaims, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/who", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c), "cid": GetCorrelationID(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	validator := fakeValidator{
		"good":    {TokenType: auth.TokenTypeAccess, RegisteredClaims: jwt.RegisteredClaims{Subject: "staff-1"}},
		"refresh": {TokenType: "refresh", RegisteredClaims: jwt.RegisteredClaims{Subject: "staff-1"}},
	}
	r := newEngine(AuthMiddleware(validator))

	cases := map[string]int{
		"":               http.StatusUnauthorized,
		"Bearer":         http.StatusUnauthorized,
		"Basic good":     http.StatusUnauthorized,
		"Bearer nope":    http.StatusUnauthorized,
		"Bearer refresh": http.StatusUnauthorized,
		"Bearer good":    http.StatusOK,
		"bearer good":    http.StatusOK,
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/who", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("Authorization %q: status %d, want %d", header, rec.Code, want)
		}
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	r := newEngine(AuthMiddleware(nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/who", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("disabled auth must pass, got %d", rec.Code)
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	r := newEngine(CorrelationIDMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Fatalf("expected caller id to be echoed, got %q", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/who", nil))
	if got := rec.Header().Get("X-Correlation-ID"); len(got) != 36 {
		t.Fatalf("expected a generated uuid, got %q", got)
	}
}

func TestInternalSecretMiddleware(t *testing.T) {
	r := newEngine(InternalSecretMiddleware("s3cret"))

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req.Header.Set("X-Internal-Secret", "wrong")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newEngine(InternalSecretMiddleware("")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/who", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured secret must fail closed, got %d", rec.Code)
	}
}

type memoryCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func (m *memoryCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	m.counts[key]++
	return redis.NewIntResult(m.counts[key], nil)
}

func (m *memoryCounter) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func TestRateLimitMiddleware(t *testing.T) {
	counter := &memoryCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
	r := newEngine(RateLimitMiddleware(counter, "render", 2, time.Minute))

	var codes []int
	for range 3 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/who", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if len(counter.expires) != 1 {
		t.Fatalf("expected the window ttl to be set once, got %v", counter.expires)
	}
	for _, ttl := range counter.expires {
		if ttl != time.Minute {
			t.Fatalf("ttl = %v", ttl)
		}
	}

	counter.err = errors.New("redis down")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/who", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("counter failure must not block requests, got %d", rec.Code)
	}
}
