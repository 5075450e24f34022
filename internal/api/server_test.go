package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/rtc-broker/internal/config"
	"github.com/npezzotti/rtc-broker/internal/credentials"
	"github.com/npezzotti/rtc-broker/internal/ratelimit"
	"github.com/npezzotti/rtc-broker/internal/roomstore"
	"github.com/npezzotti/rtc-broker/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewServer_healthRouteReachableThroughFullStack(t *testing.T) {
	client := testRedisClient(t)
	defer client.Close()

	cs := testChatServer(t, &roomstore.MockRepository{})
	tokens := credentials.NewTokenService([]byte("test-signing-key"))
	credsStore := credentials.NewStore(&credentials.MockRepository{}, tokens)
	rooms := roomstore.NewStore(&roomstore.MockRepository{})

	restLimiter := ratelimit.NewRedisLimiter(client, ratelimit.Config{Window: time.Minute, RequestsPerWindow: 1000}, "test:api:server:rest:")
	webhookLimiter := ratelimit.NewRedisLimiter(client, ratelimit.Config{Window: time.Minute, RequestsPerWindow: 1000}, "test:api:server:webhook:")

	cfg, err := config.NewConfig(":0", "postgres://unused", "mongodb://unused", "localhost:6379", "dGVzdC1zaWduaW5nLWtleQ==", []string{"*"}, "info")
	assert.NoError(t, err)

	s := NewServer(testutil.TestLogger(t), cs, credsStore, rooms, restLimiter, webhookLimiter, cfg)

	rr := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
