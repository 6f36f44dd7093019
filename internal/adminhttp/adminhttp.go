// Package adminhttp is the ambient observability sidecar (H in SPEC_FULL.md
// §4.9): a small gin.Engine bound to a loopback port, separate from the RESP
// listener. Grounded on the teacher's cmd/zmux-server/main.go Gin wiring —
// gin.New(), gin.Recovery(), the ZapLogger middleware, dev-only CORS, and an
// http.Server with explicit timeouts and a zap-backed ErrorLog.
package adminhttp

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/registry"
	"github.com/redlite/redlite/internal/storage"
)

// Stats is the subset of server state the sidecar reports on. The caller
// supplies the handles once; every request reads them afresh rather than
// caching, since registry/bus sizes change constantly.
type Stats struct {
	Registry *registry.Registry
	Bus      *notify.Bus
	Engine   *storage.Engine
}

// ZapLogger logs each admin request the way the teacher's middleware does:
// method, route, status, client IP, user agent, latency, with level
// escalating on 4xx/5xx.
func ZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
		}

		switch {
		case status >= 500:
			log.Error("admin request", fields...)
		case status >= 400:
			log.Warn("admin request", fields...)
		default:
			log.Info("admin request", fields...)
		}
	}
}

// New builds the sidecar's gin.Engine: /healthz, /debug/vars, and a
// per-connection listing at /debug/clients.
func New(log *zap.Logger, stats Stats) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})
	r.Use(gin.Recovery())
	r.Use(secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	}))

	if os.Getenv("ENV") == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(ZapLogger(log.Named("admin")))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "server_id": stats.Engine.ServerID})
	})

	r.GET("/debug/vars", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"connections":       stats.Registry.Len(),
			"notify_bus_version": stats.Bus.Version(),
		})
	})

	r.GET("/debug/clients", func(c *gin.Context) {
		clients := make([]registry.ClientInfo, 0, stats.Registry.Len())
		for _, s := range stats.Registry.List() {
			clients = append(clients, registry.Describe(s))
		}
		c.JSON(http.StatusOK, clients)
	})

	return r
}

// Server wraps the gin.Engine in an http.Server with the teacher's timeout
// conventions, and runs it cooperatively with the caller's context.
type Server struct {
	httpServer *http.Server
}

// NewServer binds addr and returns a Server ready for Run.
func NewServer(addr string, log *zap.Logger, stats Stats) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:           addr,
			Handler:        New(log, stats),
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 15,
			ErrorLog:       zap.NewStdLog(log.Named("admin.http").WithOptions(zap.AddCallerSkip(1))),
		},
	}
}

// Run serves until ctx is canceled, then shuts down gracefully. Returns nil
// on a clean shutdown, any other listen/serve failure otherwise.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
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
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
