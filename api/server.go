// Package api serves the Sentinel service over HTTP/JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rustyeddy/sentinel/logging"
	"github.com/rustyeddy/sentinel/sentinel"
	"go.uber.org/zap"
)

// ActorHeader names the caller for override attribution.
const ActorHeader = "X-Sentinel-Actor"

type Server struct {
	addr   string
	router *gin.Engine
	logger *zap.Logger
}

type ServerConfig struct {
	Addr    string
	Service *sentinel.Service
	Logger  *zap.Logger
	// MaxVerdicts bounds how many evaluated verdicts are kept for
	// follow-up override and submit calls.
	MaxVerdicts int
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("api server requires a service")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8686"
	}
	logger := logging.OrNop(cfg.Logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), actor())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h := newHandler(cfg.Service, newVerdictCache(cfg.MaxVerdicts), logger)
	h.register(router.Group("/v1"))

	return &Server{addr: cfg.Addr, router: router, logger: logger}, nil
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("api listening", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("dur", time.Since(start)),
		)
	}
}

func actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a := c.GetHeader(ActorHeader); a != "" {
			c.Request = c.Request.WithContext(sentinel.WithActor(c.Request.Context(), a))
		}
		c.Next()
	}
}
