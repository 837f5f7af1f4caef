package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/tbranch/accountlink/internal/auth/session"
)

// Server hosts the auth service over HTTP.
type Server struct {
	service  *Service
	listener net.Listener
	server   *http.Server
}

// NewServer wires routes and CORS and starts listening on addr.
//
// appOrigins is the allowlist of browser origins permitted to call the
// API with credentials. An empty list disables cross-origin access.
func NewServer(addr string, appOrigins []string, service *Service) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Server{service: service, listener: listener}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   appOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "Accept-Language"},
		AllowCredentials: true,
	})

	s.server = &http.Server{Handler: corsMiddleware.Handler(mux)}
	return s, nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/providers/", s.handleProviderRoutes)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/logout", s.handleLogout)
	mux.HandleFunc("/auth/status", s.handleStatus)
	mux.HandleFunc("/auth/verify/request", s.handleVerifyRequest)
	mux.HandleFunc("/auth/verify", s.handleVerifyRedeem)
	mux.HandleFunc("/up", s.handleHealth)
}

// Handler exposes the full middleware chain for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve blocks until the server stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	session.StartCleanup(serverCtx, s.service.Store, 5*time.Minute, s.service.Logger)

	log.Printf("auth server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = s.server.Shutdown(shutdownCtx)
		err := <-serveErr
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case err := <-serveErr:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}
