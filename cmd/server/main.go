package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"genstudio/internal/api"
	"genstudio/internal/config"
	"genstudio/internal/llm"
	"genstudio/internal/model"
	"genstudio/internal/service"
	"genstudio/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

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

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}

	if err := model.SeedAdminAccount(context.Background(), repo, cfg); err != nil {
		logrus.WithError(err).Warn("failed to seed admin account")
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}

	httpClient := &http.Client{}
	imageClients := llm.NewImageClients(cfg, httpClient)
	videoBackend, err := llm.NewVideoBackend(cfg, httpClient)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise video backend")
		return
	}

	gate, err := service.NewUsageGate(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise usage gate")
		return
	}
	orchestrator := service.NewOrchestrator(imageClients, cfg.ParallelProviderAttempts)
	compositor := service.NewVideoCompositor(orchestrator, videoBackend, httpClient, cfg.SourceImageFetchLimit)
	generationSvc := service.NewGenerationService(repo, store, gate, orchestrator, compositor, service.GenerationOptions{
		PersistArtifacts: cfg.ArtifactStorageEnabled,
		PublicBaseURL:    cfg.StoragePublicBaseURL,
		FetchLimit:       cfg.SourceImageFetchLimit,
		VideoFetchLimit:  cfg.VideoFetchLimit,
		HTTPClient:       httpClient,
	})
	accountSvc := service.NewAccountService(repo, imageClients)

	httpHandler, err := api.NewHTTPHandler(cfg, repo, store, generationSvc, accountSvc)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	var renewal *service.CreditRenewal
	if strings.TrimSpace(cfg.CreditRenewalCron) != "" {
		renewal, err = service.NewCreditRenewal(repo, cfg.CreditRenewalCron)
		if err != nil {
			logrus.WithError(err).Error("failed to initialise credit renewal")
			return
		}
		renewal.Start()
	}

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	httpHandler.RegisterRoutes(r)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := strings.TrimSpace(cfg.StoragePublicBaseURL)
		if publicPrefix == "" {
			publicPrefix = "/files"
		}
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			if !strings.HasPrefix(publicPrefix, "/") {
				publicPrefix = "/" + publicPrefix
			}
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	// 视频生成可能持续数分钟，写超时需覆盖视频后端超时
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 900 * time.Second,
		IdleTimeout:  1200 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logrus.WithField("host", serverHost).Info("服务器启动")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("服务器启动失败")
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if renewal != nil {
		renewal.Stop(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http server shutdown")
	}
}

// RequestIDMiddleware 为每个请求分配 ID，已有的 X-Request-ID 原样透传
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Request-ID")
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
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   duration.String(),
			"size":       c.Writer.Size(),
			"client_ip":  c.ClientIP(),
		}).Info("http_request")
	}
}
