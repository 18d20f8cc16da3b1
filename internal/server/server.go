package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/strokectl/internal/auth"
	"github.com/danmuck/strokectl/internal/node"
	"github.com/danmuck/strokectl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var ErrListenAddrRequired = errors.New("server: listen address required")

const (
	version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

// RouteRegistrar adds role-specific routes next to the admin routes.
type RouteRegistrar interface {
	RegisterRoutes(r gin.IRoutes)
}

// Option adjusts an Admin before its routes are registered.
type Option func(*Admin)

// WithAuth puts node-registered routes behind a bearer token. The admin
// routes stay open.
func WithAuth(v auth.Validator) Option {
	return func(a *Admin) {
		a.guard = v
	}
}

// Admin serves health, status and metrics for one node, plus any routes the
// node registers itself.
type Admin struct {
	Addr     string
	Appeared time.Time

	node   node.Node
	router *gin.Engine
	guard  auth.Validator
}

func New(n node.Node, addr string, corsOrigins []string, opts ...Option) *Admin {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(n.NodeID()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "PUT"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		Addr:     addr,
		Appeared: time.Now(),
		node:     n,
		router:   r,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.registerRoutes()
	if reg, ok := n.(RouteRegistrar); ok {
		routes := r.Group("/")
		if a.guard != nil {
			routes.Use(auth.Middleware(a.guard))
		}
		reg.RegisterRoutes(routes)
	}
	return a
}

func (a *Admin) HTTPRouter() *gin.Engine {
	return a.router
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.Appeared).String(),
			"kind":    a.node.Kind(),
			"node":    a.node.NodeID(),
			"version": version,
		})
	})

	a.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"node":   a.node.NodeID(),
			"kind":   a.node.Kind(),
			"uptime": time.Since(a.Appeared).String(),
			"status": a.node.Status(),
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run serves until ctx ends, then shuts the listener down gracefully.
func (a *Admin) Run(ctx context.Context) error {
	if strings.TrimSpace(a.Addr) == "" {
		return ErrListenAddrRequired
	}
	srv := &http.Server{
		Addr:              a.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.Addr).Str("node", a.node.NodeID()).Msg("server.Admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Str("addr", a.Addr).Msg("server.Admin stopped")
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
