package service

import (
	"context"
	"errors"
	"testing"

	"genstudio/internal/entity"
	"genstudio/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndDeleteCredential(t *testing.T) {
	repo := newTestRepo(t)
	providers := newProviderSet()
	svc := NewAccountService(repo, providers.clients())
	user := seedUser(t, repo, entity.TierBasic, 1, entity.Credentials{})
	ctx := context.Background()

	status, err := svc.SaveCredential(ctx, user.ID, "openai", "  sk-abcdefghijklmno ")
	require.NoError(t, err)
	assert.True(t, status.HasCredential)
	assert.Equal(t, "sk-a...lmno", status.MaskedKey)

	_, err = svc.SelectModel(ctx, user.ID, "openai", "dall-e-2")
	require.NoError(t, err)

	// 更新密钥不影响已选模型
	status, err = svc.SaveCredential(ctx, user.ID, "openai", "sk-zzzzzzzzzzzzzzzz")
	require.NoError(t, err)
	assert.Equal(t, "dall-e-2", status.SelectedModel)

	require.NoError(t, svc.DeleteCredential(ctx, user.ID, "openai"))
	all, err := svc.Credentials(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.False(t, all[entity.ProviderOpenAI].HasCredential)
	assert.Empty(t, all[entity.ProviderOpenAI].SelectedModel)
}

func TestSaveCredentialValidation(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewAccountService(repo, newProviderSet().clients())
	user := seedUser(t, repo, entity.TierBasic, 1, entity.Credentials{})

	_, err := svc.SaveCredential(context.Background(), user.ID, "midjourney", "key")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = svc.SaveCredential(context.Background(), user.ID, "huggingface", "   ")
	assert.Error(t, err)
}

func TestVerifyCredentialCapsModelList(t *testing.T) {
	providers := newProviderSet()
	providers.b.models = []string{"dall-e-3", "dall-e-2", "m3", "m4", "m5", "m6", "m7"}
	svc := NewAccountService(newTestRepo(t), providers.clients())

	result, err := svc.VerifyCredential(context.Background(), "openai", "sk-x")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Len(t, result.AvailableModels, 5)
	assert.Equal(t, "OpenAI DALL-E API key is valid", result.Message)
}

func TestVerifyCredentialReportsInvalidKey(t *testing.T) {
	providers := newProviderSet()
	providers.c.listErr = errors.New("http 401: Invalid credentials")
	svc := NewAccountService(newTestRepo(t), providers.clients())

	result, err := svc.VerifyCredential(context.Background(), "huggingface", "hf_bad")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Error, "401")
}

func TestAvailableModelsOnlyForStoredKeys(t *testing.T) {
	repo := newTestRepo(t)
	providers := newProviderSet()
	providers.a.models = []string{"imagen-3.0-generate-001"}
	providers.b.listErr = errors.New("http 500")
	svc := NewAccountService(repo, providers.clients())
	user := seedUser(t, repo, entity.TierBasic, 1, entity.Credentials{
		GoogleImagen: entity.ProviderCredential{APIKey: "g"},
		OpenAI:       entity.ProviderCredential{APIKey: "sk"},
	})

	models, err := svc.AvailableModels(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"imagen-3.0-generate-001"}, models[entity.ProviderGoogleImagen].AvailableModels)
	assert.Equal(t, "http 500", models[entity.ProviderOpenAI].Error)
	assert.False(t, models[entity.ProviderHuggingFace].HasCredential)
	assert.Empty(t, models[entity.ProviderHuggingFace].AvailableModels)
}

func TestTestModel(t *testing.T) {
	repo := newTestRepo(t)
	providers := newProviderSet()
	svc := NewAccountService(repo, providers.clients())
	user := seedUser(t, repo, entity.TierBasic, 1, entity.Credentials{HuggingFace: entity.ProviderCredential{APIKey: "hf"}})
	ctx := context.Background()

	result, err := svc.TestModel(ctx, user.ID, "huggingface", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Model sdxl is working correctly", result.Message)

	providers.c.outcome = failOutcome(llm.OutcomeLoading, 503, "estimated 20s")
	result, err = svc.TestModel(ctx, user.ID, "huggingface", "sdxl")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "loading (http 503): estimated 20s", result.Error)

	result, err = svc.TestModel(ctx, user.ID, "openai", "dall-e-3")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not configured")
}

func TestCredits(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewAccountService(repo, nil)
	user := seedUser(t, repo, entity.TierPro, 7, entity.Credentials{})

	balance, err := svc.Credits(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.CreditBalance{Tier: entity.TierPro, ImageCredits: 7, VideoCredits: 10}, *balance)
}
