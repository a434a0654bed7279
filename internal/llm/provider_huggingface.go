package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"genstudio/internal/entity"
	"genstudio/internal/utils"
)

const defaultHuggingFaceModel = "stabilityai/stable-diffusion-xl-base-1.0"

// deprecatedHuggingFaceModels no longer serve inference and map to SDXL.
var deprecatedHuggingFaceModels = map[string]struct{}{
	"runwayml/stable-diffusion-v1-5":              {},
	"sd-legacy/stable-diffusion-v1-5":             {},
	"stable-diffusion-v1-5/stable-diffusion-v1-5": {},
}

// popularHuggingFaceModels is offered once a token has been verified; the
// hub has no endpoint listing deployable text-to-image models per token.
var popularHuggingFaceModels = []string{
	defaultHuggingFaceModel,
	"black-forest-labs/FLUX.1-dev",
	"black-forest-labs/FLUX.1-schnell",
}

// HuggingFace calls the hosted inference router.
type HuggingFace struct {
	baseURL      string
	whoAmIURL    string
	defaultModel string
	timeout      time.Duration
	client       *http.Client
}

func NewHuggingFace(baseURL, whoAmIURL, defaultModel string, timeout time.Duration, client *http.Client) *HuggingFace {
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = defaultHuggingFaceModel
	}
	return &HuggingFace{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		whoAmIURL:    strings.TrimSpace(whoAmIURL),
		defaultModel: defaultModel,
		timeout:      timeout,
		client:       newHTTPClient(client),
	}
}

func (h *HuggingFace) Provider() entity.ProviderID {
	return entity.ProviderHuggingFace
}

func (h *HuggingFace) resolveModel(selected string) string {
	selected = strings.TrimSpace(selected)
	if selected == "" {
		return h.defaultModel
	}
	if _, deprecated := deprecatedHuggingFaceModels[selected]; deprecated {
		return defaultHuggingFaceModel
	}
	return selected
}

type huggingFaceError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

func (h *HuggingFace) GenerateImage(ctx context.Context, req ImageRequest) Outcome {
	model := h.resolveModel(req.Model)
	if strings.TrimSpace(req.APIKey) == "" {
		return failure(OutcomeCredentialInvalid, model, 0, "api key missing")
	}
	return h.generate(ctx, req.APIKey, model, req.Prompt)
}

func (h *HuggingFace) generate(ctx context.Context, apiKey, model, prompt string) Outcome {
	log := providerLogger(ctx, string(h.Provider()), model)
	callCtx, cancel := withCallTimeout(ctx, h.timeout)
	defer cancel()

	log.WithField("prompt_preview", logSnippet(prompt)).Info("huggingface_generate_start")
	headers := map[string]string{
		"Authorization": "Bearer " + apiKey,
		"Accept":        "image/png",
	}
	resp, err := doRequest(callCtx, h.client, http.MethodPost, h.baseURL+"/"+model, headers, map[string]string{"inputs": prompt})
	if err != nil {
		log.WithError(err).Warn("huggingface_generate_transport_error")
		return transportFailure(model, err)
	}
	if resp.status != http.StatusOK {
		outcome := classifyHuggingFaceStatus(model, resp.status, resp.body)
		log.WithFields(attemptFields(outcome)).Warn("huggingface_generate_failed")
		return outcome
	}
	if len(resp.body) == 0 {
		return failure(OutcomeUnknownFailure, model, resp.status, "empty response body")
	}

	mimeType := utils.DetectMime(resp.body)
	if !strings.HasPrefix(mimeType, "image/") {
		// 200 with a JSON body means the model is not a text-to-image model
		return failure(OutcomeUnknownFailure, model, resp.status, "response is not an image: "+apiErrorMessage(resp.body))
	}
	log.WithField("bytes", len(resp.body)).Info("huggingface_generate_succeeded")
	return success(model, "data:"+mimeType+";base64,"+base64.StdEncoding.EncodeToString(resp.body))
}

func classifyHuggingFaceStatus(model string, status int, body []byte) Outcome {
	var parsed huggingFaceError
	detail := string(body)
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		detail = parsed.Error
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return failure(OutcomeCredentialInvalid, model, status, detail)
	case http.StatusPaymentRequired, http.StatusTooManyRequests:
		return failure(OutcomeQuotaExceeded, model, status, detail)
	case http.StatusNotFound, http.StatusGone:
		return failure(OutcomeModelUnavailable, model, status, detail)
	case http.StatusServiceUnavailable:
		if parsed.EstimatedTime > 0 {
			detail = fmt.Sprintf("model is loading, estimated %.0fs", parsed.EstimatedTime)
		}
		return failure(OutcomeLoading, model, status, detail)
	default:
		return failure(OutcomeUnknownFailure, model, status, detail)
	}
}

// ListModels verifies the token with whoami and returns the curated models.
func (h *HuggingFace) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key missing")
	}
	callCtx, cancel := withCallTimeout(ctx, h.timeout)
	defer cancel()

	resp, err := doRequest(callCtx, h.client, http.MethodGet, h.whoAmIURL, map[string]string{"Authorization": "Bearer " + apiKey}, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, errors.New(classifyHuggingFaceStatus("", resp.status, resp.body).Error())
	}
	return append([]string(nil), popularHuggingFaceModels...), nil
}

// TestModel runs a single short generation against the model.
func (h *HuggingFace) TestModel(ctx context.Context, apiKey, model string) Outcome {
	outcome := h.generate(ctx, apiKey, h.resolveModel(model), "test")
	if outcome.Succeeded() {
		outcome.Payload = outcome.Model
	}
	return outcome
}

var _ ImageClient = (*HuggingFace)(nil)
