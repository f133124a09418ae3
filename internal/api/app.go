package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
	"golang.org/x/time/rate"

	"broadchat/internal/config"
	"broadchat/internal/database"
	"broadchat/internal/server"
)

type BroadchatApp struct {
	log            *log.Logger
	db             database.BroadchatRepository
	mux            *http.Server
	gateway        *server.Gateway
	signingKey     []byte
	allowedOrigins []string
	ipLimiter      *ipRateLimiter
	// generateShortId is a field so tests can stub broadcast id generation
	generateShortId func() (string, error)
}

func NewBroadchatApp(mux *http.ServeMux, logger *log.Logger, gw *server.Gateway, db database.BroadchatRepository, cfg *config.Config) *BroadchatApp {
	s := &BroadchatApp{
		log:             logger,
		db:              db,
		gateway:         gw,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		ipLimiter:       newIPRateLimiter(rate.Limit(20), 40, 2*time.Minute),
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/users", s.authMiddleware(s.listUsers))
	mux.Handle("GET /api/broadcasts", s.authMiddleware(s.listBroadcasts))
	mux.Handle("POST /api/broadcasts", s.authMiddleware(s.createBroadcast))
	mux.Handle("GET /api/broadcasts/{id}", s.authMiddleware(s.getBroadcast))
	mux.Handle("PUT /api/broadcasts/{id}", s.authMiddleware(s.updateBroadcast))
	mux.Handle("DELETE /api/broadcasts/{id}", s.authMiddleware(s.deleteBroadcast))
	mux.Handle("GET /api/chat/room/{roomId}", s.authMiddleware(s.getRoomMessages))
	mux.Handle("DELETE /api/chat/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.Handle("GET /api/notifications", s.authMiddleware(s.listNotifications))
	mux.Handle("PUT /api/notifications/{id}/read", s.authMiddleware(s.markNotificationRead))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.rateLimitMiddleware(h)
	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *BroadchatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *BroadchatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	s.ipLimiter.Stop()
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
