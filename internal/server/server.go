package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pmkv/internal/engine"
	"pmkv/internal/logger"
)

// Store 是 HTTP 层依赖的存储。
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Stats() engine.Stats
}

type Server struct {
	router *gin.Engine
	store  Store
	srv    *http.Server
}

// New 创建 server，路由已注册但未监听。
func New(store Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router: gin.New(),
		store:  store,
	}
	s.srv = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	s.router.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleHealthCheck())
	s.router.GET("/v1/stats", s.handleStats())
	s.router.GET("/v1/kv/:key", s.handleGet())
	s.router.PUT("/v1/kv/:key", s.handlePut())
}

// Handler 返回路由，测试里直接 ServeHTTP。
func (s *Server) Handler() http.Handler { return s.router }

// Start 监听 addr，直到 Shutdown。
func (s *Server) Start(addr string) error {
	s.srv.Addr = addr
	logger.Info("http listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "took", time.Since(start))
	}
}
