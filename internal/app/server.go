// Package server wires the passkey service, its sqlite store, and the HTTP
// surface into a runnable server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/augchan42/passkey-backend-demo/internal/api/rest"
	"github.com/augchan42/passkey-backend-demo/internal/passkey"
	"github.com/augchan42/passkey-backend-demo/internal/storage/sqlite"
	"github.com/augchan42/passkey-backend-demo/internal/token"
)

// challengeSweepInterval controls how often expired challenges are purged.
const challengeSweepInterval = time.Minute

// Server hosts the passkey HTTP API.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *sqlite.Store
	service    *passkey.Service
}

// New creates a configured server listening on the provided address.
func New(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	store, err := openStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	service, err := passkey.NewService(passkey.LoadConfigFromEnv(), store)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("configure passkey service: %w", err)
	}

	issuer, err := token.NewIssuerFromEnv()
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("configure token issuer: %w", err)
	}

	handler := rest.NewHandler(service).
		WithReadyCheck(func(ctx context.Context) error { return store.DB().PingContext(ctx) })
	if issuer != nil {
		handler = handler.WithTokenIssuer(issuer)
	}
	router := otelhttp.NewHandler(rest.NewRouter(handler), "passkey.http")

	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: router},
		store:      store,
		service:    service,
	}, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, addr string) error {
	server, err := New(addr)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.startChallengeSweep(serverCtx)

	log.Printf("passkey server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}

	select {
	case <-ctx.Done():
		shutdown()
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// startChallengeSweep purges expired challenges on an interval so abandoned
// ceremonies do not accumulate.
func (s *Server) startChallengeSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(challengeSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.service.SweepExpiredChallenges(ctx); err != nil && ctx.Err() == nil {
					log.Printf("sweep expired challenges: %v", err)
				}
			}
		}
	}()
}

func openStore() (*sqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("PASSKEY_DEMO_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "passkeys.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open passkey sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close passkey store: %v", err)
		}
	}
}
