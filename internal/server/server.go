// Package server exposes the bridge over HTTP: the WebSocket endpoint, a
// status endpoint, Prometheus metrics and the browser page.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"whatsbridge/internal/domain"
	"whatsbridge/internal/metrics"
)

//go:embed web_assets/*
var assetsFS embed.FS

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State   domain.ConnectionState `json:"state"`
	Inbox   int                    `json:"inbox"`
	Clients int                    `json:"clients"`
	Version string                 `json:"version"`
	Time    string                 `json:"time"`
}

type StateReader interface {
	Get() domain.ConnectionState
}

// Counter reports a current size (inbox length, attached clients).
type Counter interface {
	Len() int
}

type Config struct {
	Host           string
	Port           int
	StaticDir      string // served at /; the embedded page is used when empty or missing
	MetricsEnabled bool
	WebSocket      http.Handler
	State          StateReader
	Inbox          Counter
	Clients        Counter
	Version        string
	Logger         *slog.Logger
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	server *http.Server
}

func New(cfg Config) *Server {
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", s.cfg.WebSocket)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.cfg.MetricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	mux.Handle("GET /", s.staticHandler())
	return mux
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("http server started", "addr", "http://"+ln.Addr().String(), "metrics", s.cfg.MetricsEnabled)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http server shutdown", "err", err)
		}
	}()

	if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(rw http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Version: s.cfg.Version,
		Time:    time.Now().Format(time.RFC3339),
	}
	if s.cfg.State != nil {
		resp.State = s.cfg.State.Get()
	}
	if s.cfg.Inbox != nil {
		resp.Inbox = s.cfg.Inbox.Len()
	}
	if s.cfg.Clients != nil {
		resp.Clients = s.cfg.Clients.Len()
	}
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(resp); err != nil {
		s.logger.Debug("write status", "err", err)
	}
}

func (s *Server) staticHandler() http.Handler {
	if dir := s.cfg.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.logger.Debug("serving static files", "dir", dir)
			return http.FileServer(http.Dir(dir))
		}
		s.logger.Warn("static directory not found, serving built-in page", "dir", dir)
	}
	sub, err := fs.Sub(assetsFS, "web_assets")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
