// Package dashboard serves the council over HTTP: a JSON API for creating
// and driving sessions, a Server-Sent Events stream per session, and
// read-only access to the transcript archive.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zulandar/council/internal/archive"
	"github.com/zulandar/council/internal/council"
	"go.uber.org/zap"
)

// surface is the archive surface name for HTTP sessions.
const surface = "http"

// defaultHeartbeat is the SSE keep-alive interval.
const defaultHeartbeat = 15 * time.Second

// Recorder attaches a persistent transcript recorder to a controller.
// *archive.Archive satisfies it.
type Recorder interface {
	Attach(ctrl *council.Controller, surface, key string) (func(), error)
}

// Server exposes a council Registry over HTTP.
type Server struct {
	registry    *council.Registry
	archive     *archive.Archive
	recorder    Recorder
	logger      *zap.Logger
	newID       func() string
	heartbeat   time.Duration
	idleTimeout time.Duration

	mu      sync.Mutex
	detach  map[string]func() // session id -> stop recording
	handler http.Handler
}

// Opts holds parameters for creating a Server.
type Opts struct {
	Registry    *council.Registry
	Archive     *archive.Archive // optional; enables /api/archive and recording
	Logger      *zap.Logger
	IdleTimeout time.Duration // sessions idle longer are dropped; 0 disables

	// For testing: override session ids and the SSE heartbeat.
	NewID     func() string
	Heartbeat time.Duration
	Recorder  Recorder
}

// New creates a Server.
func New(opts Opts) (*Server, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("dashboard: registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	recorder := opts.Recorder
	if recorder == nil && opts.Archive != nil {
		recorder = opts.Archive
	}

	s := &Server{
		registry:    opts.Registry,
		archive:     opts.Archive,
		recorder:    recorder,
		logger:      logger.Named("http"),
		newID:       newID,
		heartbeat:   heartbeat,
		idleTimeout: opts.IdleTimeout,
		detach:      make(map[string]func()),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes(router)
	s.handler = router
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start launches the HTTP server on port. It blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int, out io.Writer) error {
	if port <= 0 {
		port = 8080
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.handler,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if s.idleTimeout > 0 {
		go s.sweepLoop(ctx, time.Minute)
	}

	if out != nil {
		fmt.Fprintf(out, "Council API listening on http://localhost:%d\n", port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// sweepLoop drops idle sessions every interval until ctx is cancelled.
func (s *Server) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes idle sessions and stops recording them.
func (s *Server) sweep() []string {
	removed := s.registry.Sweep(s.idleTimeout)
	for _, id := range removed {
		s.stopRecording(id)
	}
	return removed
}

// startRecording attaches the recorder to a new session, if configured.
func (s *Server) startRecording(id string, ctrl *council.Controller) {
	if s.recorder == nil {
		return
	}
	detach, err := s.recorder.Attach(ctrl, surface, id)
	if err != nil {
		s.logger.Warn("archive attach failed", zap.String("session", id), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.detach[id] = detach
	s.mu.Unlock()
}

func (s *Server) stopRecording(id string) {
	s.mu.Lock()
	detach, ok := s.detach[id]
	delete(s.detach, id)
	s.mu.Unlock()
	if ok {
		detach()
	}
}

// requestLogger logs each request through zap.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
