package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"genstudio/internal/entity"
	"genstudio/internal/llm"
	reposql "genstudio/internal/model/sql"
	"genstudio/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	repo      *reposql.GormRepository
	providers *providerSet
	video     *fakeVideoBackend
	svc       *GenerationService
	events    []GenerationEvent
}

func newServiceFixture(t *testing.T, opts GenerationOptions, store storage.Storage) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:      newTestRepo(t),
		providers: newProviderSet(),
		video:     &fakeVideoBackend{url: "https://video.example.com/out.mp4"},
	}
	gate, err := NewUsageGate(testConfig())
	require.NoError(t, err)
	images := NewOrchestrator(f.providers.clients(), false)
	compositor := NewVideoCompositor(images, f.video, nil, 0)
	compositor.seed = func() int { return 4242 }

	f.svc = NewGenerationService(f.repo, store, gate, images, compositor, opts)
	f.svc.SetNotifyFunc(func(userID uint, event GenerationEvent) {
		f.events = append(f.events, event)
	})
	return f
}

func (f *serviceFixture) artifactCount(t *testing.T, userID uint) int64 {
	t.Helper()
	stats, err := f.repo.ArtifactStats(context.Background(), userID)
	require.NoError(t, err)
	return stats.Total
}

func (f *serviceFixture) balance(t *testing.T, userID uint) int {
	t.Helper()
	user, err := f.repo.GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	return user.ImageCredits
}

func TestFreeTierGetsSampleWithoutSideEffects(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{}, nil)
	user := seedUser(t, f.repo, entity.TierFree, 5, allCredentials())

	resp, err := f.svc.RequestImageGeneration(context.Background(), user.ID, "a fox")
	require.NoError(t, err)
	assert.True(t, resp.IsSample)
	assert.Equal(t, "https://placeholder/sample.png", resp.URL)
	assert.Zero(t, f.providers.totalCalls())
	assert.Equal(t, 5, f.balance(t, user.ID))
	assert.Zero(t, f.artifactCount(t, user.ID))
}

func TestNoCredentialsGetsConfigureKeySample(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{}, nil)
	user := seedUser(t, f.repo, entity.TierBasic, 3, entity.Credentials{})

	resp, err := f.svc.RequestImageGeneration(context.Background(), user.ID, "a fox")
	require.NoError(t, err)
	assert.True(t, resp.IsSample)
	assert.Equal(t, noCredentialMessage, resp.Message)
	assert.Zero(t, f.providers.totalCalls())
	assert.Equal(t, 3, f.balance(t, user.ID))
}

func TestZeroBalanceDeniedWithoutNetworkCalls(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{}, nil)
	user := seedUser(t, f.repo, entity.TierBasic, 0, entity.Credentials{
		GoogleImagen: entity.ProviderCredential{APIKey: "g"},
		OpenAI:       entity.ProviderCredential{APIKey: "sk"},
	})

	_, err := f.svc.RequestImageGeneration(context.Background(), user.ID, "a fox")
	var denied *PolicyDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, DenialInsufficientCredits, denied.Code)
	assert.Equal(t, 0, f.providers.a.Calls())
	assert.Equal(t, 0, f.providers.b.Calls())
	assert.Equal(t, 0, f.providers.c.Calls())
}

func TestGuestIsDenied(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{}, nil)
	user := seedUser(t, f.repo, entity.TierGuest, 10, allCredentials())

	_, err := f.svc.RequestVideoGeneration(context.Background(), user.ID, "waves")
	var denied *PolicyDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, DenialSignupRequired, denied.Code)
	assert.Zero(t, f.providers.totalCalls())
}

func TestEmptyPromptRejected(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{}, nil)
	_, err := f.svc.RequestImageGeneration(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestFallbackCommitsProviderBAndDebitsOnce(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{}, nil)
	f.providers.a.outcome = failOutcome(llm.OutcomeModelUnavailable, 404, "model not found")
	user := seedUser(t, f.repo, entity.TierBasic, 1, entity.Credentials{
		GoogleImagen: entity.ProviderCredential{APIKey: "g"},
		OpenAI:       entity.ProviderCredential{APIKey: "sk"},
	})

	resp, err := f.svc.RequestImageGeneration(context.Background(), user.ID, "a red fox")
	require.NoError(t, err)

	assert.False(t, resp.IsSample)
	assert.Equal(t, entity.ProviderOpenAI, resp.Provider)
	assert.Equal(t, "https://cdn.example.com/b.png", resp.URL)
	require.NotNil(t, resp.CreditsRemaining)
	assert.Equal(t, 0, *resp.CreditsRemaining)
	assert.Equal(t, 0, f.balance(t, user.ID))
	assert.Zero(t, f.providers.c.Calls())

	items, _, err := f.repo.ListArtifacts(context.Background(), &entity.ArtifactQuery{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, entity.ProviderOpenAI, items[0].ProviderID)
	assert.Equal(t, "a red fox", items[0].Prompt)
	assert.Equal(t, "Generated Image: a red fox", items[0].Title)
	assert.Equal(t, resp.ArtifactID, items[0].ID)

	require.Len(t, f.events, 1)
	assert.Equal(t, resp.ArtifactID, f.events[0].ArtifactID)
}

func TestAllProvidersFailedLeavesLedgerUntouched(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{}, nil)
	f.providers.a.outcome = failOutcome(llm.OutcomeCredentialInvalid, 401, "a")
	f.providers.b.outcome = failOutcome(llm.OutcomeQuotaExceeded, 429, "b")
	f.providers.c.outcome = failOutcome(llm.OutcomeLoading, 503, "c")
	user := seedUser(t, f.repo, entity.TierPro, 4, allCredentials())

	_, err := f.svc.RequestImageGeneration(context.Background(), user.ID, "p")
	var failed *AllProvidersFailedError
	require.True(t, errors.As(err, &failed))
	assert.Len(t, failed.Diagnostics(), 3)
	assert.Equal(t, 4, f.balance(t, user.ID))
	assert.Zero(t, f.artifactCount(t, user.ID))
	assert.Empty(t, f.events)
}

func TestVideoSourceImageFailureIsDistinguishable(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{}, nil)
	f.providers.b.outcome = failOutcome(llm.OutcomeCredentialInvalid, 401, "bad key")
	user := seedUser(t, f.repo, entity.TierBasic, 2, entity.Credentials{OpenAI: entity.ProviderCredential{APIKey: "sk"}})

	_, err := f.svc.RequestVideoGeneration(context.Background(), user.ID, "waves")
	var videoErr *VideoGenerationFailedError
	require.True(t, errors.As(err, &videoErr))
	assert.Equal(t, StageSourceImage, videoErr.Stage)
	var failed *AllProvidersFailedError
	assert.True(t, errors.As(err, &failed))
	assert.Zero(t, int(f.video.calls))
	assert.Equal(t, 2, f.balance(t, user.ID))
}

func TestVideoBackendFailureIsDistinguishable(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{}, nil)
	f.video.err = errors.New("video backend http 500: queue full")
	user := seedUser(t, f.repo, entity.TierBasic, 2, entity.Credentials{GoogleImagen: entity.ProviderCredential{APIKey: "g"}})

	_, err := f.svc.RequestVideoGeneration(context.Background(), user.ID, "waves")
	var videoErr *VideoGenerationFailedError
	require.True(t, errors.As(err, &videoErr))
	assert.Equal(t, StageVideoBackend, videoErr.Stage)
	var failed *AllProvidersFailedError
	assert.False(t, errors.As(err, &failed))
	assert.NotEqual(t, StageSourceImage, videoErr.Stage)
	assert.Equal(t, 2, f.balance(t, user.ID))
	assert.Zero(t, f.artifactCount(t, user.ID))
}

func TestVideoGenerationCommits(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{}, nil)
	user := seedUser(t, f.repo, entity.TierBasic, 2, entity.Credentials{GoogleImagen: entity.ProviderCredential{APIKey: "g"}})

	resp, err := f.svc.RequestVideoGeneration(context.Background(), user.ID, "waves")
	require.NoError(t, err)
	assert.Equal(t, "https://video.example.com/out.mp4", resp.URL)
	assert.Equal(t, entity.ProviderID("gradio-spaces"), resp.Provider)
	assert.Equal(t, entity.ProviderGoogleImagen, resp.SourceProvider)

	assert.Equal(t, 4242, f.video.last.Seed)
	assert.Equal(t, "waves", f.video.last.Prompt)
	assert.Equal(t, []byte("A"), f.video.last.Image)

	// 默认视频也扣图像额度
	user, err = f.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.ImageCredits)
	assert.Equal(t, 10, user.VideoCredits)

	artifact, err := f.repo.GetArtifact(context.Background(), resp.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, entity.ModVideo, artifact.Kind)
	assert.Equal(t, entity.ProviderGoogleImagen, artifact.SourceProviderID)
}

func TestArtifactPersistedToStorage(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	f := newServiceFixture(t, GenerationOptions{PersistArtifacts: true, PublicBaseURL: "/files"}, store)
	user := seedUser(t, f.repo, entity.TierBasic, 1, entity.Credentials{GoogleImagen: entity.ProviderCredential{APIKey: "g"}})

	resp, err := f.svc.RequestImageGeneration(context.Background(), user.ID, "a fox")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.URL, "/files/artifacts/images/"), resp.URL)

	artifact, err := f.repo.GetArtifact(context.Background(), resp.ArtifactID)
	require.NoError(t, err)
	require.NotEmpty(t, artifact.StorageKey)
	assert.Equal(t, "data:image/png;base64,QQ==", artifact.Payload)
	assert.NotEmpty(t, artifact.Metadata["content_md5"])

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(artifact.StorageKey)))
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), data)
}

func TestVideoPersistenceUsesVideoFetchLimit(t *testing.T) {
	body := make([]byte, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/out.mp4" {
			w.Header().Set("Content-Type", "video/mp4")
		} else {
			w.Header().Set("Content-Type", "image/png")
		}
		w.Write(body)
	}))
	defer srv.Close()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := newServiceFixture(t, GenerationOptions{
		PersistArtifacts: true,
		FetchLimit:       8,
		VideoFetchLimit:  0,
		HTTPClient:       srv.Client(),
	}, store)
	f.video.url = srv.URL + "/out.mp4"
	user := seedUser(t, f.repo, entity.TierBasic, 2, entity.Credentials{GoogleImagen: entity.ProviderCredential{APIKey: "g"}})

	resp, err := f.svc.RequestVideoGeneration(context.Background(), user.ID, "waves")
	require.NoError(t, err)
	video, err := f.repo.GetArtifact(context.Background(), resp.ArtifactID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(video.StorageKey, "artifacts/videos/"), video.StorageKey)
	assert.EqualValues(t, 64, video.Metadata["bytes"])

	// 图片仍受 FetchLimit 约束，超限时保留服务商地址
	f.providers.a.outcome = okOutcome("imagen-3.0-generate-001", srv.URL+"/big.png")
	resp, err = f.svc.RequestImageGeneration(context.Background(), user.ID, "a fox")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/big.png", resp.URL)
	image, err := f.repo.GetArtifact(context.Background(), resp.ArtifactID)
	require.NoError(t, err)
	assert.Empty(t, image.StorageKey)
}

func TestLostDebitRaceDiscardsStoredMedia(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	f := newServiceFixture(t, GenerationOptions{PersistArtifacts: true}, store)
	user := seedUser(t, f.repo, entity.TierBasic, 1, entity.Credentials{GoogleImagen: entity.ProviderCredential{APIKey: "g"}})
	// 另一个请求在准入检查之后抢先扣掉最后一点额度
	f.providers.a.beforeReturn = func() {
		_, err := f.repo.AdjustCredits(context.Background(), user.ID, entity.CounterImage, -1)
		require.NoError(t, err)
	}

	_, err = f.svc.RequestImageGeneration(context.Background(), user.ID, "a fox")
	var denied *PolicyDeniedError
	require.True(t, errors.As(err, &denied), "got %v", err)
	assert.Equal(t, DenialInsufficientCredits, denied.Code)
	assert.Equal(t, 1, f.providers.a.Calls())

	assert.Equal(t, 0, f.balance(t, user.ID))
	assert.Zero(t, f.artifactCount(t, user.ID))
	assert.Empty(t, f.events)
	assert.Empty(t, storedFiles(t, dir), "stored media must be removed")
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

type failingStorage struct{}

func (failingStorage) Save(ctx context.Context, data []byte, opts storage.SaveOptions) (string, error) {
	return "", errors.New("bucket unavailable")
}

func (failingStorage) Delete(ctx context.Context, key string) error { return nil }

func TestStorageFailureKeepsProviderPayload(t *testing.T) {
	f := newServiceFixture(t, GenerationOptions{PersistArtifacts: true}, failingStorage{})
	user := seedUser(t, f.repo, entity.TierBasic, 1, entity.Credentials{GoogleImagen: entity.ProviderCredential{APIKey: "g"}})

	resp, err := f.svc.RequestImageGeneration(context.Background(), user.ID, "a fox")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,QQ==", resp.URL)
	assert.Equal(t, 0, f.balance(t, user.ID))
}

func TestArtifactURL(t *testing.T) {
	assert.Equal(t, "", ArtifactURL("/files", nil))
	assert.Equal(t, "https://x/y.png", ArtifactURL("/files", &entity.DbArtifact{Payload: "https://x/y.png"}))
	assert.Equal(t, "/files/a/b.png", ArtifactURL("/files", &entity.DbArtifact{Payload: "https://x/y.png", StorageKey: "a/b.png"}))
}

func TestBuildOutputBaseName(t *testing.T) {
	name := buildOutputBaseName("stabilityai/stable-diffusion-xl-base-1.0")
	assert.True(t, strings.HasPrefix(name, "stabilityaistable-diffusion-xl-b_"), name)
	assert.True(t, strings.HasPrefix(buildOutputBaseName(""), "model_"))
}

func TestComputeContentHash(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", computeContentHash([]byte{}))
	assert.Equal(t, "8b1a9953c4611296a827abf8c47804d7", computeContentHash([]byte("Hello")))
}
