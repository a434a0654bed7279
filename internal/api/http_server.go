package api

import (
	"sync"
	"time"

	"genstudio/internal/auth"
	"genstudio/internal/config"
	"genstudio/internal/model"
	"genstudio/internal/service"
	"genstudio/internal/storage"

	"github.com/gin-gonic/gin"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg               config.Config
	repo              model.Repository
	storage           storage.Storage
	storagePublicBase string
	authManager       *auth.Manager

	// 服务层
	generationService *service.GenerationService
	accountService    *service.AccountService

	// SSE 客户端管理，按用户 ID 分组
	sseClients map[uint][]chan sseMessage
	sseMu      sync.Mutex
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage, generation *service.GenerationService, accounts *service.AccountService) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	handler := &HTTPHandler{
		cfg:               cfg,
		repo:              repo,
		storage:           store,
		storagePublicBase: cfg.StoragePublicBaseURL,
		authManager:       authManager,
		generationService: generation,
		accountService:    accounts,
		sseClients:        make(map[uint][]chan sseMessage),
	}

	// 设置 SSE 通知回调
	if generation != nil {
		generation.SetNotifyFunc(handler.notifyGenerationComplete)
	}

	return handler, nil
}

// RegisterRoutes 注册全部 API 路由
func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.GET("/me", h.AuthMiddleware(), h.Me)

	protected := apiGroup.Group("")
	protected.Use(h.AuthMiddleware())
	protected.POST("/ai/generate-image", h.GenerateImage)
	protected.POST("/ai/generate-video", h.GenerateVideo)
	protected.GET("/events", h.StreamGenerationEvents)

	me := protected.Group("/me")
	me.GET("/credits", h.GetCredits)
	me.GET("/api-keys", h.ListCredentials)
	me.POST("/api-keys", h.SaveCredential)
	me.POST("/api-keys/verify", h.VerifyCredential)
	me.DELETE("/api-keys/:provider", h.DeleteCredential)
	me.PUT("/api-keys/:provider/model", h.SelectModel)
	me.GET("/models", h.ListModels)
	me.POST("/models/test", h.TestModel)

	protected.GET("/artifacts", h.ListArtifacts)
	protected.GET("/artifacts/stats", h.ArtifactStats)
	protected.GET("/artifacts/:id", h.GetArtifact)
	protected.DELETE("/artifacts/:id", h.DeleteArtifact)

	admin := protected.Group("/admin")
	admin.Use(h.RequireAdmin())
	admin.GET("/users", h.ListUsers)
	admin.PATCH("/users/:id/tier", h.UpdateUserTier)
	admin.PATCH("/users/:id/credits", h.UpdateUserCredits)
	admin.DELETE("/users/:id", h.DeleteUser)
	admin.GET("/artifacts", h.AdminListArtifacts)
	admin.DELETE("/artifacts/:id", h.DeleteArtifact)
}

// notifyGenerationComplete 通知生成完成（用于 SSE 推送）
func (h *HTTPHandler) notifyGenerationComplete(userID uint, event service.GenerationEvent) {
	h.publishSSEMessage(userID, sseMessage{
		event: "generation_completed",
		data:  event,
	})
}
