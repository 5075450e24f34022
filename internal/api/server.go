package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/rtc-broker/internal/config"
	"github.com/npezzotti/rtc-broker/internal/credentials"
	"github.com/npezzotti/rtc-broker/internal/ratelimit"
	"github.com/npezzotti/rtc-broker/internal/roomstore"
	"github.com/npezzotti/rtc-broker/internal/server"
)

// Server is the REST and WebSocket-upgrade front door. It holds
// no room or connection state of its own — that all lives in the
// ChatServer actor — and exists only to authenticate, rate-limit, and
// translate HTTP into calls against the Store layers.
type Server struct {
	log  *log.Logger
	http *http.Server

	cs    *server.ChatServer
	creds *credentials.Store
	rooms *roomstore.Store

	restLimiter    *ratelimit.RedisLimiter
	webhookLimiter *ratelimit.RedisLimiter
	webhookSecret  []byte
	allowedOrigins []string
}

func NewServer(
	logger *log.Logger,
	cs *server.ChatServer,
	creds *credentials.Store,
	rooms *roomstore.Store,
	restLimiter *ratelimit.RedisLimiter,
	webhookLimiter *ratelimit.RedisLimiter,
	cfg *config.Config,
) *Server {
	s := &Server{
		log:            logger,
		cs:             cs,
		creds:          creds,
		rooms:          rooms,
		restLimiter:    restLimiter,
		webhookLimiter: webhookLimiter,
		webhookSecret:  cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms/mine", s.authMiddleware(s.listMyRooms))
	mux.HandleFunc("GET /api/rooms/{roomId}", s.getRoom)
	mux.HandleFunc("POST /api/webhooks/translate", s.webhookTranslate)
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /debug/vars", cs.MetricsHandler())
	mux.HandleFunc("GET /ws", s.serveWs)

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)

	var h http.Handler = mux
	h = cors(h)
	h = s.rateLimitMiddleware(h)
	h = s.errorHandler(h)

	s.http = &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.log.Printf("listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
