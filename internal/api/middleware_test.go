package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/rtc-broker/internal/credentials"
	"github.com/npezzotti/rtc-broker/internal/ratelimit"
	"github.com/npezzotti/rtc-broker/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func testCredsStore() *credentials.Store {
	tokens := credentials.NewTokenService([]byte("test-signing-key"))
	return credentials.NewStore(&credentials.MockRepository{}, tokens)
}

func TestAuthMiddleware_missingToken(t *testing.T) {
	s := &Server{log: testutil.TestLogger(t), creds: testCredsStore()}

	called := false
	h := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) { called = true })

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest("GET", "/api/rooms/mine", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddleware_invalidToken(t *testing.T) {
	s := &Server{log: testutil.TestLogger(t), creds: testCredsStore()}

	h := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/api/rooms/mine", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")

	rr := httptest.NewRecorder()
	h(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddleware_validToken(t *testing.T) {
	creds := testCredsStore()
	tokens := credentials.NewTokenService([]byte("test-signing-key"))
	token, err := tokens.Mint(7)
	assert.NoError(t, err)

	s := &Server{log: testutil.TestLogger(t), creds: creds}

	var gotUserId int
	h := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotUserId, _ = UserId(r.Context())
	})

	req := httptest.NewRequest("GET", "/api/rooms/mine", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	h(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 7, gotUserId)
}

func TestErrorHandler_recoversPanic(t *testing.T) {
	s := &Server{log: testutil.TestLogger(t)}

	h := s.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func testRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skip("redis not available, skipping integration test")
	}
	return client
}

func TestRateLimitMiddleware_blocksOverLimit(t *testing.T) {
	client := testRedisClient(t)
	defer client.Close()

	prefix := "test:api:ratelimit:"
	defer client.Del(context.Background(), prefix+"1.2.3.4", prefix+"1.2.3.4:counter")

	limiter := ratelimit.NewRedisLimiter(client, ratelimit.Config{Window: time.Minute, RequestsPerWindow: 1}, prefix)
	s := &Server{log: testutil.TestLogger(t), restLimiter: limiter}

	called := 0
	h := s.rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ }))

	req := func() *http.Request {
		r := httptest.NewRequest("GET", "/api/rooms/mine", nil)
		r.RemoteAddr = "1.2.3.4:5555"
		return r
	}

	h.ServeHTTP(httptest.NewRecorder(), req())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req())

	assert.Equal(t, 1, called)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRateLimitMiddleware_ignoresNonApiPaths(t *testing.T) {
	s := &Server{log: testutil.TestLogger(t)}

	called := false
	h := s.rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	assert.True(t, called)
}
