package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"genstudio/internal/auth"
	"genstudio/internal/config"
	"genstudio/internal/entity"
	"genstudio/internal/llm"
	reposql "genstudio/internal/model/sql"
	"genstudio/internal/service"
	"genstudio/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubImageClient struct {
	provider entity.ProviderID
	outcome  llm.Outcome
}

func (s *stubImageClient) Provider() entity.ProviderID { return s.provider }

func (s *stubImageClient) GenerateImage(ctx context.Context, req llm.ImageRequest) llm.Outcome {
	return s.outcome
}

func (s *stubImageClient) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	return []string{"dall-e-3"}, nil
}

func (s *stubImageClient) TestModel(ctx context.Context, apiKey, model string) llm.Outcome {
	return s.outcome
}

type stubVideoBackend struct{}

func (stubVideoBackend) Name() string  { return "gradio-spaces" }
func (stubVideoBackend) Model() string { return "wan" }
func (stubVideoBackend) GenerateVideo(ctx context.Context, req llm.VideoRequest) (string, error) {
	return "https://video.example.com/v.mp4", nil
}

type testServer struct {
	router  *gin.Engine
	handler *HTTPHandler
	repo    *reposql.GormRepository
	openai  *stubImageClient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithStorage(t, nil)
}

// newTestServerWithStorage persists generated media into store when it is not nil.
func newTestServerWithStorage(t *testing.T, store storage.Storage) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&entity.DbUser{}, &entity.DbArtifact{}))
	repo := reposql.NewGormRepository(db)

	cfg := config.Config{
		JWTSecret:            "test-secret",
		JWTIssuer:            "genstudio",
		JWTExpirationMinutes: 60,
		StoragePublicBaseURL: "/files",
		ImageCreditCounter:   "image",
		VideoCreditCounter:   "image",
		SampleImageURL:       "https://placeholder/sample.png",
		SampleVideoURL:       "https://placeholder/sample.mp4",
		NoKeyImageURL:        "https://placeholder/nokey.png",
		NoKeyVideoURL:        "https://placeholder/nokey.mp4",
	}

	openai := &stubImageClient{
		provider: entity.ProviderOpenAI,
		outcome:  llm.Outcome{Kind: llm.OutcomeSuccess, Model: "dall-e-3", Payload: "data:image/png;base64,QQ==", StatusCode: 200},
	}
	clients := []llm.ImageClient{openai}

	gate, err := service.NewUsageGate(cfg)
	require.NoError(t, err)
	images := service.NewOrchestrator(clients, false)
	videos := service.NewVideoCompositor(images, stubVideoBackend{}, nil, 0)
	generation := service.NewGenerationService(repo, store, gate, images, videos, service.GenerationOptions{
		PersistArtifacts: store != nil,
		PublicBaseURL:    cfg.StoragePublicBaseURL,
	})
	accounts := service.NewAccountService(repo, clients)

	handler, err := NewHTTPHandler(cfg, repo, store, generation, accounts)
	require.NoError(t, err)

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, handler: handler, repo: repo, openai: openai}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createAdmin(t *testing.T) string {
	t.Helper()
	hash, err := auth.HashPassword("admin-password")
	require.NoError(t, err)
	admin := &entity.DbUser{Email: "admin@example.com", PasswordHash: hash, Tier: entity.TierAdmin, IsActive: true}
	require.NoError(t, s.repo.CreateUser(context.Background(), admin))
	token, _, err := s.handler.authManager.GenerateToken(admin)
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestGenerationFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "user@example.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	registered := decode[entity.AuthResponse](t, w)
	assert.Equal(t, entity.TierFree, registered.User.Tier)
	assert.Zero(t, registered.User.ImageCredits)
	userToken := registered.Token

	// free 等级只拿到示例图
	w = s.do(t, http.MethodPost, "/api/ai/generate-image", userToken, gin.H{"topic": "a fox"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sample := decode[entity.GenerationResponse](t, w)
	assert.True(t, sample.IsSample)
	assert.Equal(t, "https://placeholder/sample.png", sample.URL)

	adminToken := s.createAdmin(t)
	tierPath := fmt.Sprintf("/api/admin/users/%d/tier", registered.User.ID)
	w = s.do(t, http.MethodPatch, tierPath, userToken, gin.H{"tier": "basic"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodPatch, tierPath, adminToken, gin.H{"tier": "basic"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 50, decode[entity.UserSummary](t, w).ImageCredits)

	// 没有密钥时返回配置提示
	w = s.do(t, http.MethodPost, "/api/ai/generate-image", userToken, gin.H{"prompt": "a fox"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://placeholder/nokey.png", decode[entity.GenerationResponse](t, w).URL)

	w = s.do(t, http.MethodPost, "/api/me/api-keys", userToken, gin.H{"provider": "openai", "api_key": "sk-abcdefghijkl"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "sk-a...ijkl", decode[entity.CredentialStatus](t, w).MaskedKey)

	w = s.do(t, http.MethodPost, "/api/ai/generate-image", userToken, gin.H{"prompt": "a fox"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	generated := decode[entity.GenerationResponse](t, w)
	assert.False(t, generated.IsSample)
	assert.Equal(t, entity.ProviderOpenAI, generated.Provider)
	require.NotNil(t, generated.CreditsRemaining)
	assert.Equal(t, 49, *generated.CreditsRemaining)

	w = s.do(t, http.MethodGet, "/api/me/credits", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 49, decode[entity.CreditBalance](t, w).ImageCredits)

	w = s.do(t, http.MethodGet, "/api/artifacts", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[entity.ArtifactListResponse](t, w)
	require.Len(t, list.Artifacts, 1)
	assert.Equal(t, "data:image/png;base64,QQ==", list.Artifacts[0].URL)
	assert.Equal(t, "a fox", list.Artifacts[0].Prompt)

	w = s.do(t, http.MethodPost, "/api/ai/generate-video", userToken, gin.H{"prompt": "waves"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	video := decode[entity.GenerationResponse](t, w)
	assert.Equal(t, "https://video.example.com/v.mp4", video.URL)
	assert.Equal(t, entity.ProviderOpenAI, video.SourceProvider)

	w = s.do(t, http.MethodGet, "/api/artifacts/stats", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.ArtifactStats{Total: 2, Images: 1, Videos: 1}, decode[entity.ArtifactStats](t, w))
}

func TestGenerationFailureReturnsDiagnostics(t *testing.T) {
	s := newTestServer(t)
	s.openai.outcome = llm.Outcome{Kind: llm.OutcomeQuotaExceeded, StatusCode: 429, Detail: "rate limited"}

	user := &entity.DbUser{
		Email: "paid@example.com", PasswordHash: "x", Tier: entity.TierPro, IsActive: true, ImageCredits: 2,
		Credentials: entity.Credentials{OpenAI: entity.ProviderCredential{APIKey: "sk"}},
	}
	require.NoError(t, s.repo.CreateUser(context.Background(), user))
	token, _, err := s.handler.authManager.GenerateToken(user)
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/ai/generate-image", token, gin.H{"prompt": "a fox"})
	require.Equal(t, http.StatusBadGateway, w.Code)

	var response struct {
		Code    string                   `json:"code"`
		Message string                   `json:"message"`
		Details generationFailureDetails `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, ErrCodeGenerationFailed, response.Code)
	require.Len(t, response.Details.Attempts, 1)
	assert.Equal(t, "quota_exceeded", response.Details.Attempts[0].Outcome)
	assert.Len(t, response.Details.MissingCredentials, 2)

	reloaded, err := s.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.ImageCredits)
}

func TestZeroCreditsDenied(t *testing.T) {
	s := newTestServer(t)
	user := &entity.DbUser{
		Email: "broke@example.com", PasswordHash: "x", Tier: entity.TierBasic, IsActive: true,
		Credentials: entity.Credentials{OpenAI: entity.ProviderCredential{APIKey: "sk"}},
	}
	require.NoError(t, s.repo.CreateUser(context.Background(), user))
	token, _, err := s.handler.authManager.GenerateToken(user)
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/ai/generate-image", token, gin.H{"prompt": "a fox"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInsufficientCredits, decode[APIError](t, w).Code)

	w = s.do(t, http.MethodPost, "/api/ai/generate-image", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeMissingField, decode[APIError](t, w).Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/ai/generate-image", "", gin.H{"prompt": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/me/credits", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeSessionExpired, decode[APIError](t, w).Code)
}

func TestDisabledUserRejected(t *testing.T) {
	s := newTestServer(t)
	user := &entity.DbUser{Email: "off@example.com", PasswordHash: "x", Tier: entity.TierBasic, IsActive: true}
	require.NoError(t, s.repo.CreateUser(context.Background(), user))
	token, _, err := s.handler.authManager.GenerateToken(user)
	require.NoError(t, err)

	inactive := false
	require.NoError(t, s.repo.UpdateUser(context.Background(), user.ID, entity.UserUpdates{IsActive: &inactive}))

	w := s.do(t, http.MethodGet, "/api/me/credits", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, ErrCodeUserDisabled, decode[APIError](t, w).Code)
}

func TestArtifactOwnership(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	owner := &entity.DbUser{Email: "owner@example.com", PasswordHash: "x", Tier: entity.TierBasic, IsActive: true, ImageCredits: 1}
	other := &entity.DbUser{Email: "other@example.com", PasswordHash: "x", Tier: entity.TierBasic, IsActive: true}
	require.NoError(t, s.repo.CreateUser(ctx, owner))
	require.NoError(t, s.repo.CreateUser(ctx, other))

	artifact := &entity.DbArtifact{UserID: owner.ID, Kind: entity.ModImage, Prompt: "p", Payload: "https://x/p.png", ProviderID: entity.ProviderOpenAI}
	_, err := s.repo.CommitGeneration(ctx, artifact, entity.CounterImage)
	require.NoError(t, err)

	otherToken, _, err := s.handler.authManager.GenerateToken(other)
	require.NoError(t, err)
	ownerToken, _, err := s.handler.authManager.GenerateToken(owner)
	require.NoError(t, err)

	path := fmt.Sprintf("/api/artifacts/%d", artifact.ID)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, otherToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, path, otherToken, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, path, ownerToken, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, ownerToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, ownerToken, nil).Code)
}

func TestDeleteUserRemovesStoredMedia(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	s := newTestServerWithStorage(t, store)
	adminToken := s.createAdmin(t)

	user := &entity.DbUser{
		Email: "leaving@example.com", PasswordHash: "x", Tier: entity.TierBasic, IsActive: true, ImageCredits: 2,
		Credentials: entity.Credentials{OpenAI: entity.ProviderCredential{APIKey: "sk"}},
	}
	require.NoError(t, s.repo.CreateUser(context.Background(), user))
	token, _, err := s.handler.authManager.GenerateToken(user)
	require.NoError(t, err)

	var files []string
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/ai/generate-image", token, gin.H{"prompt": "a fox"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		artifact, err := s.repo.GetArtifact(context.Background(), decode[entity.GenerationResponse](t, w).ArtifactID)
		require.NoError(t, err)
		require.NotEmpty(t, artifact.StorageKey)
		path := filepath.Join(dir, filepath.FromSlash(artifact.StorageKey))
		_, err = os.Stat(path)
		require.NoError(t, err)
		files = append(files, path)
	}

	w := s.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", user.ID), adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	for _, path := range files {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), path)
	}
	_, err = s.repo.GetUserByID(context.Background(), user.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAdminCreditAdjustments(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.createAdmin(t)
	user := &entity.DbUser{Email: "c@example.com", PasswordHash: "x", Tier: entity.TierBasic, IsActive: true, ImageCredits: 2, VideoCredits: 1}
	require.NoError(t, s.repo.CreateUser(context.Background(), user))
	path := fmt.Sprintf("/api/admin/users/%d/credits", user.ID)

	w := s.do(t, http.MethodPatch, path, adminToken, gin.H{"image_delta": 3, "video_credits": 9})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[entity.UserSummary](t, w)
	assert.Equal(t, 5, summary.ImageCredits)
	assert.Equal(t, 9, summary.VideoCredits)

	w = s.do(t, http.MethodPatch, path, adminToken, gin.H{"image_delta": -10})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, fmt.Sprintf("/api/admin/users/%d/tier", user.ID), adminToken, gin.H{"tier": "pro", "keep_credits": true})
	require.Equal(t, http.StatusOK, w.Code)
	summary = decode[entity.UserSummary](t, w)
	assert.Equal(t, entity.TierPro, summary.Tier)
	assert.Equal(t, 5, summary.ImageCredits)

	w = s.do(t, http.MethodPatch, "/api/admin/users/9999/tier", adminToken, gin.H{"tier": "pro"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSSEPublishByUser(t *testing.T) {
	h := &HTTPHandler{}
	ch := make(chan sseMessage, 1)
	h.registerSSEClient(7, ch)

	h.notifyGenerationComplete(8, service.GenerationEvent{ArtifactID: 1})
	h.notifyGenerationComplete(7, service.GenerationEvent{ArtifactID: 2})

	msg := <-ch
	assert.Equal(t, "generation_completed", msg.event)
	assert.Equal(t, uint(2), msg.data.(service.GenerationEvent).ArtifactID)

	// 缓冲已满时丢弃而不是阻塞
	h.notifyGenerationComplete(7, service.GenerationEvent{ArtifactID: 3})
	h.notifyGenerationComplete(7, service.GenerationEvent{ArtifactID: 4})
	assert.Len(t, ch, 1)

	h.unregisterSSEClient(7, ch)
	assert.Empty(t, h.sseClients)
}
