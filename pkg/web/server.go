package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"avaneesh/dnp3-outstation/pkg/agent"
)

// Server serves the agent API under /api/v1
type Server struct {
	Router *gin.Engine
	Addr   string
}

// NewRouter returns a gin engine with request logging and panic recovery
func NewRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())
	return engine
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		klog.V(4).InfoS("Received HTTP request",
			"verb", c.Request.Method,
			"URI", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// NewServer installs the handlers of a on a new router
func NewServer(addr string, a *agent.Agent) *Server {
	s := &Server{Router: NewRouter(), Addr: addr}
	InstallHandler(s.Router.Group("/api/v1"), a)
	return s
}

// Serve starts listening and returns the function that stops the server
func (s *Server) Serve() (func(ctx context.Context), error) {
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: s.Router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.ErrorS(err, "HTTP server stopped")
		}
	}()
	klog.InfoS("HTTP API listening", "address", l.Addr().String())

	return func(ctx context.Context) {
		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "Failed to shut HTTP server down")
		}
	}, nil
}
