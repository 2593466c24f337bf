// Package httpapi serves the read API and the run-trigger endpoints.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/chrbailey/lex-intel/internal/db"
	"github.com/chrbailey/lex-intel/internal/embed"
	"github.com/chrbailey/lex-intel/internal/signals"
)

// Triggers exposes the pipeline stages the POST endpoints can start. A nil
// field disables its endpoint.
type Triggers struct {
	Scrape  func(ctx context.Context) (any, error)
	Analyze func(ctx context.Context) (any, error)
	Publish func(ctx context.Context, platform string) (any, error)
	Cycle   func(ctx context.Context) (any, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// AdminTokenHash guards the trigger endpoints when non-empty.
	AdminTokenHash string
}

type Server struct {
	pool     *db.Pool
	embedder embed.Embedder
	signals  *signals.Service
	triggers Triggers
	logger   zerolog.Logger
	opts     Options
}

func NewServer(pool *db.Pool, embedder embed.Embedder, signalSvc *signals.Service, triggers Triggers, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8070
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		// Trigger endpoints run a full pipeline stage inline.
		writeTimeout = 10 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:     pool,
		embedder: embedder,
		signals:  signalSvc,
		triggers: triggers,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			AdminTokenHash:  strings.TrimSpace(opts.AdminTokenHash),
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/articles/search", s.handleSearch)
	api.GET("/articles/:article_uuid", s.handleArticleDetail)
	api.GET("/briefings/latest", s.handleLatestBriefing)
	api.GET("/briefings", s.handleBriefingForDay)
	api.GET("/signals", s.handleSignals)
	api.GET("/trending", s.handleTrending)
	api.GET("/sources", s.handleSources)
	runs := api.Group("/runs", s.requireAdmin())
	runs.POST("/scrape", s.handleRunScrape)
	runs.POST("/analyze", s.handleRunAnalyze)
	runs.POST("/publish", s.handleRunPublish)
	runs.POST("/cycle", s.handleRunCycle)
	if s.opts.AdminTokenHash == "" {
		s.logger.Warn().Msg("LEX_ADMIN_TOKEN_HASH not set, trigger endpoints are unauthenticated")
	}

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		case error:
			message = v.Error()
		}
	}

	if status >= 500 {
		s.logger.Error().Err(err).Int("status", status).Str("uri", c.Request().RequestURI).Msg("request error")
		if writeErr := internalError(c, message); writeErr != nil {
			s.logger.Error().Err(writeErr).Msg("write error response failed")
		}
		return
	}
	if writeErr := fail(c, status, message, nil); writeErr != nil {
		s.logger.Error().Err(writeErr).Msg("write fail response failed")
	}
}
