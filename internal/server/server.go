package server

import (
	"context"
	"fmt"

	"github.com/ceyewan/minichat/internal/cache"
	"github.com/ceyewan/minichat/internal/clog"
	"github.com/ceyewan/minichat/internal/config"
	"github.com/ceyewan/minichat/internal/presence"
	"github.com/ceyewan/minichat/internal/repository"
	"github.com/ceyewan/minichat/internal/service"
)

// Server 聊天服务器，负责组装并管理所有组件的生命周期
type Server struct {
	cfg    *config.Config
	logger clog.Logger

	db      *repository.Database
	cache   cache.Cache
	router  *service.Router
	sweeper *service.Sweeper
	http    *HTTPServer

	sweeperCancel context.CancelFunc
}

// New 组装服务器：数据库、缓存、仓储、路由引擎、传输层
func New(cfg *config.Config) (*Server, error) {
	logger := clog.Module("server")

	db, err := repository.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	redisCache, err := cache.New(cfg.Cache)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}

	users := repository.NewUserRepository(db)
	groups := repository.NewGroupRepository(db)
	messages := repository.NewMessageRepository(db)
	unread := repository.NewUnreadStore(redisCache, messages)
	registry := presence.NewRegistry()

	router, err := service.NewRouter(cfg.Business, users, groups, messages, unread, registry)
	if err != nil {
		redisCache.Close()
		db.Close()
		return nil, fmt.Errorf("初始化路由引擎失败: %w", err)
	}

	ws := NewWebSocketManager(cfg.Server.WebSocket, router)
	httpServer := NewHTTPServer(cfg, db, users, groups, router, ws)
	sweeper := service.NewSweeper(cfg.Business, messages)

	return &Server{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		cache:   redisCache,
		router:  router,
		sweeper: sweeper,
		http:    httpServer,
	}, nil
}

// Start 启动服务器，阻塞直到 HTTP 服务退出
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.sweeperCancel = cancel
	go s.sweeper.Run(ctx)

	s.logger.Info("聊天服务器启动",
		clog.String("addr", s.cfg.Server.HTTPAddr),
		clog.String("ws_path", s.cfg.Server.WSPath),
		clog.String("db_driver", s.cfg.Database.Driver))

	return s.http.Start()
}

// Shutdown 优雅关闭：停止接收新连接，然后释放各组件资源
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("聊天服务器开始关闭")

	if s.sweeperCancel != nil {
		s.sweeperCancel()
	}

	var firstErr error
	if err := s.http.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("关闭 HTTP 服务失败: %w", err)
	}

	s.router.Typing().Stop()

	if err := s.cache.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("关闭缓存失败: %w", err)
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("关闭数据库失败: %w", err)
	}

	s.logger.Info("聊天服务器已关闭")
	return firstErr
}
