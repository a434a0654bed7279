package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"genstudio/internal/entity"
)

const defaultDallEModel = "dall-e-3"

// OpenAIImages calls the OpenAI images API.
type OpenAIImages struct {
	baseURL      string
	defaultModel string
	timeout      time.Duration
	client       *http.Client
}

func NewOpenAIImages(baseURL, defaultModel string, timeout time.Duration, client *http.Client) *OpenAIImages {
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = defaultDallEModel
	}
	return &OpenAIImages{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		defaultModel: defaultModel,
		timeout:      timeout,
		client:       newHTTPClient(client),
	}
}

func (o *OpenAIImages) Provider() entity.ProviderID {
	return entity.ProviderOpenAI
}

// resolveModel only accepts DALL-E models; chat models cannot draw.
func (o *OpenAIImages) resolveModel(selected string) string {
	selected = strings.TrimSpace(selected)
	if strings.Contains(strings.ToLower(selected), "dall") {
		return selected
	}
	return o.defaultModel
}

type openAIImageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality,omitempty"`
}

type openAIImageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (o *OpenAIImages) authHeaders(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

func (o *OpenAIImages) GenerateImage(ctx context.Context, req ImageRequest) Outcome {
	model := o.resolveModel(req.Model)
	if strings.TrimSpace(req.APIKey) == "" {
		return failure(OutcomeCredentialInvalid, model, 0, "api key missing")
	}
	return o.generate(ctx, req.APIKey, model, req.Prompt, "1024x1024")
}

func (o *OpenAIImages) generate(ctx context.Context, apiKey, model, prompt, size string) Outcome {
	log := providerLogger(ctx, string(o.Provider()), model)
	callCtx, cancel := withCallTimeout(ctx, o.timeout)
	defer cancel()

	payload := openAIImageRequest{Model: model, Prompt: prompt, N: 1, Size: size}
	if model == "dall-e-3" {
		payload.Quality = "standard"
	}
	log.WithField("prompt_preview", logSnippet(prompt)).Info("openai_generate_start")

	resp, err := doRequest(callCtx, o.client, http.MethodPost, o.baseURL+"/images/generations", o.authHeaders(apiKey), payload)
	if err != nil {
		log.WithError(err).Warn("openai_generate_transport_error")
		return transportFailure(model, err)
	}
	if resp.status != http.StatusOK {
		outcome := classifyOpenAIStatus(model, resp.status, resp.body)
		log.WithFields(attemptFields(outcome)).Warn("openai_generate_failed")
		return outcome
	}

	var parsed openAIImageResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return failure(OutcomeUnknownFailure, model, resp.status, "decode response: "+err.Error())
	}
	if len(parsed.Data) == 0 {
		return failure(OutcomeUnknownFailure, model, resp.status, "no image returned")
	}
	first := parsed.Data[0]
	switch {
	case strings.TrimSpace(first.URL) != "":
		log.Info("openai_generate_succeeded")
		return success(model, strings.TrimSpace(first.URL))
	case first.B64JSON != "":
		log.Info("openai_generate_succeeded")
		return success(model, "data:image/png;base64,"+first.B64JSON)
	default:
		return failure(OutcomeUnknownFailure, model, resp.status, "image entry has neither url nor b64_json")
	}
}

func classifyOpenAIStatus(model string, status int, body []byte) Outcome {
	var parsed openAIErrorBody
	_ = json.Unmarshal(body, &parsed)
	detail := parsed.Error.Message
	if detail == "" {
		detail = apiErrorMessage(body)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return failure(OutcomeCredentialInvalid, model, status, detail)
	case status == http.StatusNotFound || parsed.Error.Code == "model_not_found":
		return failure(OutcomeModelUnavailable, model, status, detail)
	case status == http.StatusTooManyRequests || parsed.Error.Code == "insufficient_quota":
		return failure(OutcomeQuotaExceeded, model, status, detail)
	case status >= 500:
		return failure(OutcomeTransientNetwork, model, status, detail)
	default:
		return failure(OutcomeUnknownFailure, model, status, detail)
	}
}

type openAIModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels returns the image models on the account.
func (o *OpenAIImages) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key missing")
	}
	callCtx, cancel := withCallTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := doRequest(callCtx, o.client, http.MethodGet, o.baseURL+"/models", o.authHeaders(apiKey), nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, errors.New(classifyOpenAIStatus("", resp.status, resp.body).Error())
	}
	var parsed openAIModelList
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	var models []string
	for _, m := range parsed.Data {
		if strings.Contains(strings.ToLower(m.ID), "dall") {
			models = append(models, m.ID)
		}
	}
	if len(models) == 0 {
		return nil, errors.New("no DALL-E models available for this key")
	}
	sort.Strings(models)
	return models, nil
}

// TestModel retrieves the model record; it does not spend image quota.
func (o *OpenAIImages) TestModel(ctx context.Context, apiKey, model string) Outcome {
	model = o.resolveModel(model)
	callCtx, cancel := withCallTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := doRequest(callCtx, o.client, http.MethodGet, o.baseURL+"/models/"+url.PathEscape(model), o.authHeaders(apiKey), nil)
	if err != nil {
		return transportFailure(model, err)
	}
	if resp.status != http.StatusOK {
		return classifyOpenAIStatus(model, resp.status, resp.body)
	}
	return success(model, model)
}

var _ ImageClient = (*OpenAIImages)(nil)
