package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"storyreel/internal/config"
	"storyreel/internal/handler"
	storyHandler "storyreel/internal/handler/story"
	"storyreel/internal/pkg/mongodb"
	"storyreel/internal/pkg/storagefactory"
	runrepo "storyreel/internal/repository/run"
	"storyreel/internal/server/middleware"
	"storyreel/internal/service"
)

// Server HTTP 服务器
type Server struct {
	cfg     *config.Config
	engine  *gin.Engine
	mongo   *mongodb.Client
	runs    service.RunService
	cancel  context.CancelFunc
	readyOn map[string]handler.Pinger

	closeStore func()
}

// New 创建服务器实例
// MongoDB 与对象存储均为可选，未配置时分别退化为内存记录与不镜像
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &Server{
		cfg:     cfg,
		engine:  gin.New(),
		readyOn: map[string]handler.Pinger{},
	}

	var repo runrepo.RunRepository = runrepo.NewMemoryRepo()
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(ctx, &cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, run records kept in memory")
		} else {
			srv.mongo = client
			srv.readyOn["mongo"] = client
			log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")
			if err := mongodb.EnsureIndexes(client.Database()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
			repo = runrepo.NewRepo(client.Database())
		}
	}

	store, err := storagefactory.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info().Str("type", store.GetStorageType()).Msg("run outputs will be mirrored")
	}

	cpStore, closeStore, err := service.NewCheckpointStore(cfg)
	if err != nil {
		return nil, err
	}
	srv.closeStore = closeStore
	if p, ok := cpStore.(handler.Pinger); ok {
		srv.readyOn["checkpoint"] = p
	}

	// 运行的生命周期跟随服务器而非单个请求
	runCtx, cancel := context.WithCancel(context.Background())
	srv.cancel = cancel
	factory := service.ConfigRunnerFactory(cfg, service.NewCheckpointer(cfg, cpStore))
	srv.runs = service.NewRunService(runCtx, repo, factory, store, cfg.Story)

	srv.setupRoutes()
	return srv, nil
}

func (s *Server) setupRoutes() {
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())

	healthHandler := handler.NewHealthHandler(s.readyOn)
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	v1 := s.engine.Group("/api/v1")
	storyHandler.NewHandler(s.runs).Register(v1)
}

// Run 启动服务器，ctx 取消后停止接收请求、中止进行中的运行并关闭连接
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		s.cancel()
		s.runs.Wait()
		s.closeStore()
		if s.mongo != nil {
			if err := s.mongo.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to close MongoDB connection")
			}
		}
		return err
	case err := <-errCh:
		s.cancel()
		s.closeStore()
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
