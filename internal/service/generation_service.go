package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"genstudio/internal/entity"
	"genstudio/internal/model"
	"genstudio/internal/storage"
	"genstudio/internal/utils"

	"github.com/sirupsen/logrus"
)

// GenerationEvent is published after a generation has been committed.
type GenerationEvent struct {
	ArtifactID       uint              `json:"artifact_id"`
	Kind             entity.Modality   `json:"kind"`
	Provider         entity.ProviderID `json:"provider"`
	URL              string            `json:"url"`
	CreditsRemaining int               `json:"credits_remaining"`
}

// GenerationOptions configures artifact persistence.
type GenerationOptions struct {
	PersistArtifacts bool
	PublicBaseURL    string
	FetchLimit       int64

	// VideoFetchLimit 视频下载上限，0 表示不限制
	VideoFetchLimit int64
	HTTPClient      *http.Client
}

// GenerationService 内容生成服务：准入检查、生成、扣费并落库
type GenerationService struct {
	repo    model.Repository
	storage storage.Storage
	gate    *UsageGate
	images  *Orchestrator
	videos  *VideoCompositor
	opts    GenerationOptions

	// notifyFunc 用于通知生成完成事件（由调用方设置）
	notifyFunc func(userID uint, event GenerationEvent)
}

// NewGenerationService 创建生成服务实例
func NewGenerationService(repo model.Repository, store storage.Storage, gate *UsageGate, images *Orchestrator, videos *VideoCompositor, opts GenerationOptions) *GenerationService {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &GenerationService{
		repo:    repo,
		storage: store,
		gate:    gate,
		images:  images,
		videos:  videos,
		opts:    opts,
	}
}

// SetNotifyFunc 设置通知函数（用于 SSE 推送）
func (s *GenerationService) SetNotifyFunc(fn func(userID uint, event GenerationEvent)) {
	s.notifyFunc = fn
}

// generated is the provider output waiting to be committed.
type generated struct {
	kind           entity.Modality
	payload        string
	provider       entity.ProviderID
	model          string
	sourceProvider entity.ProviderID
	metadata       entity.JSONMap
}

// RequestImageGeneration runs the gate, the provider chain and the commit.
func (s *GenerationService) RequestImageGeneration(ctx context.Context, userID uint, prompt string) (*entity.GenerationResponse, error) {
	return s.request(ctx, userID, prompt, entity.ModImage, func(user *entity.DbUser) (*generated, error) {
		result, err := s.images.GenerateImage(ctx, user.Credentials, prompt)
		if err != nil {
			return nil, err
		}
		return &generated{
			kind:     entity.ModImage,
			payload:  result.Payload,
			provider: result.Provider,
			model:    result.Model,
			metadata: attemptMetadata(result.Attempts),
		}, nil
	})
}

// RequestVideoGeneration builds a source image first, then animates it.
func (s *GenerationService) RequestVideoGeneration(ctx context.Context, userID uint, prompt string) (*entity.GenerationResponse, error) {
	return s.request(ctx, userID, prompt, entity.ModVideo, func(user *entity.DbUser) (*generated, error) {
		result, err := s.videos.Generate(ctx, user.Credentials, prompt)
		if err != nil {
			return nil, err
		}
		return &generated{
			kind:           entity.ModVideo,
			payload:        result.URL,
			provider:       entity.ProviderID(result.Backend),
			model:          result.Model,
			sourceProvider: result.SourceProvider,
			metadata: entity.JSONMap{
				"seed":         result.Seed,
				"source_model": result.SourceModel,
			},
		}, nil
	})
}

func (s *GenerationService) request(ctx context.Context, userID uint, prompt string, kind entity.Modality, run func(*entity.DbUser) (*generated, error)) (*entity.GenerationResponse, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if s.repo == nil {
		return nil, errors.New("repository not initialised")
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision := s.gate.Authorize(user, kind)
	switch decision.Verdict {
	case VerdictDenied:
		return nil, decision.Denial
	case VerdictSample:
		return &entity.GenerationResponse{
			URL:      decision.Sample.URL,
			IsSample: true,
			Message:  decision.Sample.Message,
		}, nil
	}

	out, err := run(user)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, user, prompt, decision.Counter, out)
}

// commit copies the media into storage when enabled, then debits and writes
// the artifact in one transaction.
func (s *GenerationService) commit(ctx context.Context, user *entity.DbUser, prompt string, counter entity.CreditCounter, out *generated) (*entity.GenerationResponse, error) {
	log := logrus.WithContext(ctx).WithFields(logrus.Fields{
		"user_id":  user.ID,
		"kind":     out.kind,
		"provider": out.provider,
		"model":    out.model,
	})

	storageKey := s.persistMedia(ctx, user.ID, out)
	artifact := &entity.DbArtifact{
		UserID:           user.ID,
		Kind:             out.kind,
		Title:            entity.ArtifactTitle(out.kind, prompt),
		Prompt:           prompt,
		Payload:          out.payload,
		StorageKey:       storageKey,
		ProviderID:       out.provider,
		ModelID:          out.model,
		SourceProviderID: out.sourceProvider,
		Metadata:         out.metadata,
	}

	remaining, err := s.repo.CommitGeneration(ctx, artifact, counter)
	if err != nil {
		s.discardMedia(storageKey)
		if errors.Is(err, entity.ErrInsufficientCredits) {
			log.Warn("credit debit lost to a concurrent request")
			return nil, insufficientCredits()
		}
		log.WithError(err).Error("failed to commit generation")
		return nil, fmt.Errorf("commit generation: %w", err)
	}

	url := s.publicURL(artifact)
	log.WithFields(logrus.Fields{
		"artifact_id":       artifact.ID,
		"credits_remaining": remaining,
	}).Info("generation committed")

	s.notifyComplete(user.ID, GenerationEvent{
		ArtifactID:       artifact.ID,
		Kind:             artifact.Kind,
		Provider:         artifact.ProviderID,
		URL:              url,
		CreditsRemaining: remaining,
	})

	return &entity.GenerationResponse{
		URL:              url,
		ArtifactID:       artifact.ID,
		Provider:         artifact.ProviderID,
		Model:            artifact.ModelID,
		SourceProvider:   artifact.SourceProviderID,
		CreditsRemaining: &remaining,
	}, nil
}

// persistMedia 转存生成结果；失败时保留服务商返回的地址
func (s *GenerationService) persistMedia(parentCtx context.Context, userID uint, out *generated) string {
	if !s.opts.PersistArtifacts || s.storage == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(parentCtx, 2*time.Minute)
	defer cancel()

	fields := logrus.Fields{
		"user_id":  userID,
		"provider": out.provider,
		"source":   utils.MediaSource(out.payload),
	}
	limit := s.opts.FetchLimit
	if out.kind == entity.ModVideo {
		limit = s.opts.VideoFetchLimit
	}
	media, err := utils.LoadMedia(ctx, s.opts.HTTPClient, out.payload, limit)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Warn("failed to fetch generated media for storage")
		return ""
	}
	key, err := s.storage.Save(ctx, media.Data, storage.SaveOptions{
		Category:    fmt.Sprintf("artifacts/%ss/%d", out.kind, userID),
		Extension:   media.Ext,
		BaseName:    buildOutputBaseName(out.model),
		ContentType: media.MimeType,
	})
	if err != nil {
		logrus.WithError(err).WithFields(fields).Warn("failed to persist generated media")
		return ""
	}
	if out.metadata == nil {
		out.metadata = entity.JSONMap{}
	}
	out.metadata["content_md5"] = computeContentHash(media.Data)
	out.metadata["bytes"] = len(media.Data)
	return key
}

func (s *GenerationService) discardMedia(key string) {
	if key == "" || s.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.storage.Delete(ctx, key); err != nil {
		logrus.WithError(err).WithField("storage_key", key).Warn("failed to remove orphaned media")
	}
}

// publicURL prefers the stored copy over the provider payload.
func (s *GenerationService) publicURL(a *entity.DbArtifact) string {
	return ArtifactURL(s.opts.PublicBaseURL, a)
}

// ArtifactURL resolves the address clients should load an artifact from.
func ArtifactURL(publicBase string, a *entity.DbArtifact) string {
	if a == nil {
		return ""
	}
	if a.StorageKey != "" {
		return storage.PublicURL(publicBase, a.StorageKey)
	}
	return a.Payload
}

// notifyComplete 通知生成完成
func (s *GenerationService) notifyComplete(userID uint, event GenerationEvent) {
	if s.notifyFunc != nil && userID != 0 {
		s.notifyFunc(userID, event)
	}
}

func attemptMetadata(attempts []ProviderAttempt) entity.JSONMap {
	if len(attempts) == 0 {
		return nil
	}
	failed := make([]string, 0, len(attempts))
	for _, a := range attempts {
		failed = append(failed, fmt.Sprintf("%s: %s", a.Provider, a.Outcome.Kind))
	}
	return entity.JSONMap{"failed_attempts": failed}
}

// computeContentHash 计算内容的 MD5
func computeContentHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// buildOutputBaseName 构建输出文件的基础名称
func buildOutputBaseName(modelName string) string {
	token := storage.SanitizeToken(modelName)
	if token == "" {
		token = "model"
	}
	if len(token) > 32 {
		token = token[:32]
	}
	return fmt.Sprintf("%s_%s", token, utils.GenerateUUID())
}
