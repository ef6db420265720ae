package main

import (
	"cleancycle/internal/api"
	"cleancycle/internal/auth"
	"cleancycle/internal/config"
	"cleancycle/internal/model"
	"cleancycle/internal/service"
	"cleancycle/internal/storage"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	// 初始化logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth.SetBcryptCost(cfg.BcryptCost)
	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiry())
	if err != nil {
		logrus.WithError(err).Error("failed to initialise token manager")
		return
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}
	if closer, ok := store.(storage.Closer); ok {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := closer.Close(closeCtx); err != nil {
				logrus.WithError(err).Warn("failed to close storage")
			}
		}()
	}

	identity, err := service.NewIdentityService(ctx, store, tokens, service.IdentityOptions{
		Delay:              cfg.AuthSimulatedDelay,
		DefaultCommunityID: cfg.DefaultCommunityID,
		Seed:               cfg.SeedDefaults,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to initialise identity service")
		return
	}

	notifications, err := service.NewNotificationService(ctx, store, service.NotificationOptions{
		Seed: cfg.SeedDefaults,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to initialise notification service")
		return
	}

	httpHandler, err := api.NewHTTPHandler(cfg, tokens, identity, notifications)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	schedulerDone := service.NewNotificationScheduler(notifications, cfg.SchedulerInterval).Start(ctx)

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	httpHandler.RegisterRoutes(r)

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logrus.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器，SSE 长连接不设置写超时
	httpServer := &http.Server{
		Addr:        serverHost,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("服务器关闭失败")
		}
	}()

	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Error("服务器启动失败")
		stop()
	}
	<-schedulerDone
	logrus.Info("服务器已停止")
}

// openStore STORAGE_TYPE=db 时使用 gorm 仓库，其余类型由 storage 包创建
func openStore(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.StorageType), storage.TypeDB) {
		repo, err := model.InitRepository(&cfg)
		if err != nil {
			return nil, err
		}
		logrus.WithField("db_type", cfg.DBType).Info("using database storage")
		return repo, nil
	}

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if local, ok := store.(*storage.LocalStorage); ok {
		logrus.WithField("dir", local.LocalBaseDir()).Info("using local storage")
	} else {
		logrus.WithField("storage_type", cfg.StorageType).Info("using remote storage")
	}
	return store, nil
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// 处理请求
		c.Next()
		// 记录请求结束
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
