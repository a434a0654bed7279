package entity

import "strings"

// GenerateRequest is the body of the image and video generation endpoints.
// Topic is accepted for clients that send the prompt under that name.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Topic  string `json:"topic"`
}

// PromptText returns the effective prompt.
func (r GenerateRequest) PromptText() string {
	if p := strings.TrimSpace(r.Prompt); p != "" {
		return p
	}
	return strings.TrimSpace(r.Topic)
}

// GenerationResponse is returned for real and sample generations alike.
type GenerationResponse struct {
	URL              string     `json:"url"`
	IsSample         bool       `json:"is_sample"`
	Message          string     `json:"message,omitempty"`
	ArtifactID       uint       `json:"artifact_id,omitempty"`
	Provider         ProviderID `json:"provider,omitempty"`
	Model            string     `json:"model,omitempty"`
	SourceProvider   ProviderID `json:"source_provider,omitempty"`
	CreditsRemaining *int       `json:"credits_remaining,omitempty"`
}

// AttemptDiagnostic describes one failed provider call for clients.
type AttemptDiagnostic struct {
	Provider ProviderID `json:"provider"`
	Outcome  string     `json:"outcome"`
	Status   int        `json:"status,omitempty"`
	Detail   string     `json:"detail"`
}

// CredentialSaveRequest stores a provider secret.
type CredentialSaveRequest struct {
	Provider string `json:"provider" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

// CredentialVerifyRequest checks a secret without storing it.
type CredentialVerifyRequest struct {
	Provider string `json:"provider" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

// ModelSelectRequest stores the preferred model for a provider.
type ModelSelectRequest struct {
	Model string `json:"model"`
}

// ModelTestRequest tests one provider model.
type ModelTestRequest struct {
	Provider string `json:"provider" binding:"required"`
	Model    string `json:"model"`
}

// CredentialStatus describes one stored credential without revealing it.
type CredentialStatus struct {
	HasCredential bool   `json:"has_credential"`
	MaskedKey     string `json:"masked_key,omitempty"`
	SelectedModel string `json:"selected_model,omitempty"`
}

// ProviderModels is one entry of the model catalogue shown in settings.
type ProviderModels struct {
	HasCredential   bool     `json:"has_credential"`
	AvailableModels []string `json:"available_models"`
	Error           string   `json:"error,omitempty"`
}

// CredentialVerification is the result of checking a secret.
type CredentialVerification struct {
	Valid           bool     `json:"valid"`
	Message         string   `json:"message"`
	AvailableModels []string `json:"available_models,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// ModelTestResult is the result of probing a model.
type ModelTestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
