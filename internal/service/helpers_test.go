package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"genstudio/internal/config"
	"genstudio/internal/entity"
	"genstudio/internal/llm"
	reposql "genstudio/internal/model/sql"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeImageClient struct {
	provider entity.ProviderID
	outcome  llm.Outcome
	delay    time.Duration
	models   []string
	listErr  error
	calls    int32

	// beforeReturn runs after the call is counted, before the outcome is returned
	beforeReturn func()
}

func (f *fakeImageClient) Provider() entity.ProviderID { return f.provider }

func (f *fakeImageClient) GenerateImage(ctx context.Context, req llm.ImageRequest) llm.Outcome {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return llm.Outcome{Kind: llm.OutcomeTransientNetwork, Detail: "request cancelled"}
		}
	}
	if f.beforeReturn != nil {
		f.beforeReturn()
	}
	return f.outcome
}

func (f *fakeImageClient) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	return f.models, f.listErr
}

func (f *fakeImageClient) TestModel(ctx context.Context, apiKey, model string) llm.Outcome {
	return f.outcome
}

func (f *fakeImageClient) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func okOutcome(model, payload string) llm.Outcome {
	return llm.Outcome{Kind: llm.OutcomeSuccess, Model: model, Payload: payload, StatusCode: 200}
}

func failOutcome(kind llm.OutcomeKind, status int, detail string) llm.Outcome {
	return llm.Outcome{Kind: kind, StatusCode: status, Detail: detail}
}

type providerSet struct {
	a, b, c *fakeImageClient
}

func newProviderSet() *providerSet {
	return &providerSet{
		a: &fakeImageClient{provider: entity.ProviderGoogleImagen, outcome: okOutcome("imagen-3.0-generate-001", "data:image/png;base64,QQ==")},
		b: &fakeImageClient{provider: entity.ProviderOpenAI, outcome: okOutcome("dall-e-3", "https://cdn.example.com/b.png")},
		c: &fakeImageClient{provider: entity.ProviderHuggingFace, outcome: okOutcome("sdxl", "data:image/png;base64,Qw==")},
	}
}

func (p *providerSet) clients() []llm.ImageClient {
	// 故意打乱顺序，尝试顺序只取决于优先级
	return []llm.ImageClient{p.c, p.a, p.b}
}

func (p *providerSet) totalCalls() int {
	return p.a.Calls() + p.b.Calls() + p.c.Calls()
}

type fakeVideoBackend struct {
	url   string
	err   error
	calls int32
	last  llm.VideoRequest
}

func (f *fakeVideoBackend) Name() string  { return "gradio-spaces" }
func (f *fakeVideoBackend) Model() string { return "wan-test" }

func (f *fakeVideoBackend) GenerateVideo(ctx context.Context, req llm.VideoRequest) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.last = req
	return f.url, f.err
}

func newTestRepo(t *testing.T) *reposql.GormRepository {
	t.Helper()
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
	return reposql.NewGormRepository(db)
}

var userSeq int32

func seedUser(t *testing.T, repo *reposql.GormRepository, tier entity.Tier, imageCredits int, creds entity.Credentials) *entity.DbUser {
	t.Helper()
	user := &entity.DbUser{
		Email:        fmt.Sprintf("%s-%d@example.com", tier, atomic.AddInt32(&userSeq, 1)),
		PasswordHash: "hash",
		Tier:         tier,
		IsActive:     true,
		ImageCredits: imageCredits,
		VideoCredits: 10,
		Credentials:  creds,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func allCredentials() entity.Credentials {
	return entity.Credentials{
		GoogleImagen: entity.ProviderCredential{APIKey: "g-key"},
		OpenAI:       entity.ProviderCredential{APIKey: "sk-key"},
		HuggingFace:  entity.ProviderCredential{APIKey: "hf-key"},
	}
}

func testConfig() config.Config {
	return config.Config{
		ImageCreditCounter: "image",
		VideoCreditCounter: "image",
		SampleImageURL:     "https://placeholder/sample.png",
		SampleVideoURL:     "https://placeholder/sample.mp4",
		NoKeyImageURL:      "https://placeholder/nokey.png",
		NoKeyVideoURL:      "https://placeholder/nokey.mp4",
	}
}
