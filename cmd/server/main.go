package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/ocpphub/internal/activity"
	"github.com/langchou/ocpphub/internal/api/handlers"
	"github.com/langchou/ocpphub/internal/bridge"
	"github.com/langchou/ocpphub/internal/config"
	"github.com/langchou/ocpphub/internal/registry"
	"github.com/langchou/ocpphub/internal/service"
	"github.com/langchou/ocpphub/internal/session"
	"github.com/langchou/ocpphub/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting ocpphub", zap.String("port", cfg.Port))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 共享状态
	reg := registry.New()
	store := session.NewStore(cfg.SessionHistoryLimit)
	activityLog := activity.New(cfg.ActivityLogLimit)

	// 桥接客户端（BRIDGE_URL 未配置时静默禁用）
	bridgeClient := bridge.New(cfg.BridgeURL, cfg.BridgeSecret, logger)
	if bridgeClient.Enabled() {
		logger.Info("Bridge enabled", zap.String("url", cfg.BridgeURL))
	}

	// 创建 WebSocket Hub（看板实时推送）
	wsHub := ws.NewHub(logger)
	wsHub.SetInitDataProvider(func() *ws.InitData {
		return &ws.InitData{
			Stations: reg.Snapshot(),
			Sessions: store.ActiveSnapshot(""),
		}
	})
	go wsHub.Run()

	// 充电桩接入服务
	cpService := service.New(cfg, logger, reg, store, bridgeClient, activityLog, wsHub)

	// 启动存活巡检
	cpService.StartSweeps(ctx)
	logger.Info("Liveness sweeps started",
		zap.Duration("heartbeat_timeout", cfg.HeartbeatTimeout),
		zap.Duration("zero_power_timeout", cfg.ZeroPowerTimeout))

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, reg, store, activityLog, cpService, wsHub)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止巡检
	cpService.StopSweeps()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
