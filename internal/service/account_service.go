package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"genstudio/internal/entity"
	"genstudio/internal/llm"
	"genstudio/internal/model"

	"github.com/sirupsen/logrus"
)

// verifiedModelPreview caps the model list returned by key verification.
const verifiedModelPreview = 5

// AccountService manages provider credentials and exposes read-only model
// helpers for the settings page.
type AccountService struct {
	repo    model.Repository
	clients map[entity.ProviderID]llm.ImageClient
	timeout time.Duration
}

func NewAccountService(repo model.Repository, clients []llm.ImageClient) *AccountService {
	indexed := make(map[entity.ProviderID]llm.ImageClient, len(clients))
	for _, c := range clients {
		indexed[c.Provider()] = c
	}
	return &AccountService{repo: repo, clients: indexed, timeout: 30 * time.Second}
}

func (s *AccountService) parseProvider(raw string) (entity.ProviderID, llm.ImageClient, error) {
	provider, ok := entity.ParseProviderID(raw)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownProvider, raw)
	}
	client, ok := s.clients[provider]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownProvider, raw)
	}
	return provider, client, nil
}

// SaveCredential stores a provider key. The previous model choice is kept.
func (s *AccountService) SaveCredential(ctx context.Context, userID uint, rawProvider, apiKey string) (*entity.CredentialStatus, error) {
	provider, _, err := s.parseProvider(rawProvider)
	if err != nil {
		return nil, err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if err := s.repo.UpdateCredential(ctx, userID, provider, entity.CredentialUpdates{APIKey: &apiKey}); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": userID, "provider": provider}).Info("provider credential saved")
	return s.credentialStatus(ctx, userID, provider)
}

// DeleteCredential clears both the key and the selected model.
func (s *AccountService) DeleteCredential(ctx context.Context, userID uint, rawProvider string) error {
	provider, _, err := s.parseProvider(rawProvider)
	if err != nil {
		return err
	}
	empty := ""
	if err := s.repo.UpdateCredential(ctx, userID, provider, entity.CredentialUpdates{APIKey: &empty, Model: &empty}); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"user_id": userID, "provider": provider}).Info("provider credential removed")
	return nil
}

// SelectModel stores the preferred model; an empty model restores the default.
func (s *AccountService) SelectModel(ctx context.Context, userID uint, rawProvider, modelID string) (*entity.CredentialStatus, error) {
	provider, _, err := s.parseProvider(rawProvider)
	if err != nil {
		return nil, err
	}
	modelID = strings.TrimSpace(modelID)
	if err := s.repo.UpdateCredential(ctx, userID, provider, entity.CredentialUpdates{Model: &modelID}); err != nil {
		return nil, err
	}
	return s.credentialStatus(ctx, userID, provider)
}

func (s *AccountService) credentialStatus(ctx context.Context, userID uint, provider entity.ProviderID) (*entity.CredentialStatus, error) {
	statuses, err := s.Credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	status := statuses[provider]
	return &status, nil
}

// Credentials returns every provider slot with the key masked.
func (s *AccountService) Credentials(ctx context.Context, userID uint) (map[entity.ProviderID]entity.CredentialStatus, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[entity.ProviderID]entity.CredentialStatus, len(entity.ProviderPriority))
	for _, p := range entity.ProviderPriority {
		cred := user.Credentials.For(p)
		out[p] = entity.CredentialStatus{
			HasCredential: cred.Present(),
			MaskedKey:     entity.MaskAPIKey(cred.APIKey),
			SelectedModel: cred.Model,
		}
	}
	return out, nil
}

// VerifyCredential checks a key against the provider without storing it.
func (s *AccountService) VerifyCredential(ctx context.Context, rawProvider, apiKey string) (*entity.CredentialVerification, error) {
	provider, client, err := s.parseProvider(rawProvider)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	models, err := client.ListModels(callCtx, strings.TrimSpace(apiKey))
	if err != nil {
		logrus.WithError(err).WithField("provider", provider).Info("credential verification failed")
		return &entity.CredentialVerification{
			Valid:   false,
			Message: fmt.Sprintf("%s API key is invalid", provider.DisplayName()),
			Error:   err.Error(),
		}, nil
	}
	if len(models) > verifiedModelPreview {
		models = models[:verifiedModelPreview]
	}
	return &entity.CredentialVerification{
		Valid:           true,
		Message:         fmt.Sprintf("%s API key is valid", provider.DisplayName()),
		AvailableModels: models,
	}, nil
}

// AvailableModels lists models per provider for the account's stored keys.
func (s *AccountService) AvailableModels(ctx context.Context, userID uint) (map[entity.ProviderID]entity.ProviderModels, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[entity.ProviderID]entity.ProviderModels, len(entity.ProviderPriority))
	for _, p := range entity.ProviderPriority {
		entry := entity.ProviderModels{AvailableModels: []string{}}
		cred := user.Credentials.For(p)
		client, ok := s.clients[p]
		if !cred.Present() || !ok {
			out[p] = entry
			continue
		}
		entry.HasCredential = true

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		models, err := client.ListModels(callCtx, cred.APIKey)
		cancel()
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.AvailableModels = models
		}
		out[p] = entry
	}
	return out, nil
}

// TestModel checks one model with the stored key.
func (s *AccountService) TestModel(ctx context.Context, userID uint, rawProvider, modelID string) (*entity.ModelTestResult, error) {
	provider, client, err := s.parseProvider(rawProvider)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	cred := user.Credentials.For(provider)
	if !cred.Present() {
		return &entity.ModelTestResult{Success: false, Error: provider.DisplayName() + " API key not configured"}, nil
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = cred.Model
	}

	outcome := client.TestModel(ctx, cred.APIKey, modelID)
	if !outcome.Succeeded() {
		return &entity.ModelTestResult{Success: false, Error: outcome.Error()}, nil
	}
	return &entity.ModelTestResult{Success: true, Message: fmt.Sprintf("Model %s is working correctly", outcome.Model)}, nil
}

// Credits returns the account's balances.
func (s *AccountService) Credits(ctx context.Context, userID uint) (*entity.CreditBalance, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &entity.CreditBalance{
		Tier:         user.Tier,
		ImageCredits: user.ImageCredits,
		VideoCredits: user.VideoCredits,
	}, nil
}
