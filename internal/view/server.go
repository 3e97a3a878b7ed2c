// Package view serves the projected session state over local HTTP so a UI
// (or curl) can read it and trigger end-session.
package view

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/callassist/internal/api"
	"github.com/danmuck/callassist/internal/auth"
	"github.com/danmuck/callassist/internal/channel"
	"github.com/danmuck/callassist/internal/lifecycle"
	"github.com/danmuck/callassist/internal/observability"
	"github.com/danmuck/callassist/internal/projection"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Source is the session the server exposes; *lifecycle.Controller
// implements it.
type Source interface {
	SessionID() string
	Snapshot() projection.SessionState
	ChannelStats() (channel.Stats, bool)
	Summary() (api.SessionSummary, bool)
	EndSession(ctx context.Context) (api.SessionSummary, error)
	EndInFlight() bool
	EndError() error
	LastError() error
	AutoEndSignal() int64
}

var _ Source = (*lifecycle.Controller)(nil)

type Config struct {
	Addr        string
	CorsOrigins []string
	// Token, when set, is required as a bearer token on POST routes.
	Token string
}

type Server struct {
	source  Source
	addr    string
	router  *gin.Engine
	started time.Time
}

// SessionView is the GET /session body.
type SessionView struct {
	projection.SessionState
	AutoEndSignal int64  `json:"auto_end_signal"`
	EndInFlight   bool   `json:"end_in_flight"`
	EndError      string `json:"end_error,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

func New(src Source, cfg Config) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, src.SessionID))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		source:  src,
		addr:    cfg.Addr,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes(strings.TrimSpace(cfg.Token))
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes(token string) {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"uptime":     time.Since(s.started).String(),
			"session_id": s.source.SessionID(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		stats, ok := s.source.ChannelStats()
		status := s.source.Snapshot().Status
		ready := ok && !status.Terminal()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"status":  status,
			"channel": stats.State,
		})
	})

	r.GET("/session", func(c *gin.Context) {
		view := SessionView{
			SessionState:  s.source.Snapshot(),
			AutoEndSignal: s.source.AutoEndSignal(),
			EndInFlight:   s.source.EndInFlight(),
		}
		if err := s.source.EndError(); err != nil {
			view.EndError = err.Error()
		}
		if err := s.source.LastError(); err != nil {
			view.LastError = err.Error()
		}
		c.JSON(http.StatusOK, view)
	})

	r.GET("/session/channel", func(c *gin.Context) {
		stats, ok := s.source.ChannelStats()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "channel not started"})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	r.GET("/session/summary", func(c *gin.Context) {
		summary, ok := s.source.Summary()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not ended"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	handlers := []gin.HandlerFunc{}
	if token != "" {
		handlers = append(handlers, auth.RequireBearer(auth.StaticToken{Token: token}))
	}
	handlers = append(handlers, s.endSession)
	r.POST("/session/end", handlers...)
}

func (s *Server) endSession(c *gin.Context) {
	summary, err := s.source.EndSession(c.Request.Context())
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, lifecycle.ErrEndInFlight):
			status = http.StatusConflict
		case errors.Is(err, lifecycle.ErrDisposed):
			status = http.StatusServiceUnavailable
		}
		log.Warn().Err(err).Str("session_id", s.source.SessionID()).Int("status", status).Msg("view.end failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Serve runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("view.listen")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if v := strings.TrimSpace(origin); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
