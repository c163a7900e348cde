// Package api serves the admin HTTP endpoints of a pathfinder process.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/HorseArcher567/pathfinder/pkg/api/middleware"
	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"github.com/gin-gonic/gin"
)

// Engine 是 gin.Engine 的类型别名，便于在其他包中引用而不直接依赖 gin。
type Engine = gin.Engine

// Server 封装 Gin HTTP 服务的生命周期。
type Server struct {
	config *ServerConfig

	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener

	log *xlog.Logger
}

// NewServer 创建 HTTP API 服务器。
func NewServer(log *xlog.Logger, cfg *ServerConfig, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("api: server config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	if log == nil {
		log = xlog.Nop()
	}

	s := &Server{
		config: cfg,
		log:    log.With("component", "api.server", "appName", cfg.AppName),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.engine == nil {
		mode := cfg.Mode
		if mode == "" {
			mode = gin.ReleaseMode
		}
		gin.SetMode(mode)

		engine := gin.New()
		engine.Use(
			middleware.Logging(s.log),
			middleware.Recovery(),
		)
		s.engine = engine
	}

	if cfg.EnablePProf {
		s.registerPProf()
	}
	return s, nil
}

// MustNewServer 创建 HTTP API 服务器，失败时 panic。
func MustNewServer(log *xlog.Logger, cfg *ServerConfig, opts ...Option) *Server {
	s, err := NewServer(log, cfg, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Engine 返回内部的 gin.Engine，便于注册路由和中间件。
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start 监听端口并在后台提供服务，立即返回。
func (s *Server) Start() error {
	addr := s.config.ListenAddr()
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: failed to listen on %s: %w", addr, err)
	}
	s.listener = lis

	s.httpServer = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.log.Info("starting api server", "addr", lis.Addr().String())
	go func() {
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server stopped", "error", err)
		}
	}()
	return nil
}

// Addr 返回实际监听地址，Start 之前为 nil。
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop 优雅关闭 HTTP 服务器。
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	s.log.Info("api server stopped")
	return nil
}

// registerPProf 将 pprof 路由挂载到 /debug/pprof。
func (s *Server) registerPProf() {
	g := s.engine.Group("/debug/pprof")
	{
		g.GET("/", gin.WrapF(pprof.Index))
		g.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		g.GET("/profile", gin.WrapF(pprof.Profile))
		g.POST("/symbol", gin.WrapF(pprof.Symbol))
		g.GET("/symbol", gin.WrapF(pprof.Symbol))
		g.GET("/trace", gin.WrapF(pprof.Trace))
		g.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
		g.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		g.GET("/heap", gin.WrapH(pprof.Handler("heap")))
	}
}
