package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"genstudio/internal/entity"
	"genstudio/internal/utils"
)

const defaultImagenModel = "imagen-3.0-generate-001"

// Imagen calls the Google Generative Language predict endpoint.
type Imagen struct {
	baseURL      string
	defaultModel string
	timeout      time.Duration
	client       *http.Client
}

func NewImagen(baseURL, defaultModel string, timeout time.Duration, client *http.Client) *Imagen {
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = defaultImagenModel
	}
	return &Imagen{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		defaultModel: defaultModel,
		timeout:      timeout,
		client:       newHTTPClient(client),
	}
}

func (g *Imagen) Provider() entity.ProviderID {
	return entity.ProviderGoogleImagen
}

// resolveModel keeps the selected model only when it names an Imagen model.
func (g *Imagen) resolveModel(selected string) string {
	selected = strings.TrimPrefix(strings.TrimSpace(selected), "models/")
	if strings.Contains(strings.ToLower(selected), "imagen") {
		return selected
	}
	return g.defaultModel
}

type imagenPredictRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount       int    `json:"sampleCount"`
	AspectRatio       string `json:"aspectRatio"`
	SafetyFilterLevel string `json:"safetyFilterLevel"`
	PersonGeneration  string `json:"personGeneration"`
}

type imagenPredictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

func (g *Imagen) GenerateImage(ctx context.Context, req ImageRequest) Outcome {
	model := g.resolveModel(req.Model)
	log := providerLogger(ctx, string(g.Provider()), model)
	if strings.TrimSpace(req.APIKey) == "" {
		return failure(OutcomeCredentialInvalid, model, 0, "api key missing")
	}

	callCtx, cancel := withCallTimeout(ctx, g.timeout)
	defer cancel()

	payload := imagenPredictRequest{
		Instances: []imagenInstance{{Prompt: req.Prompt}},
		Parameters: imagenParameters{
			SampleCount:       1,
			AspectRatio:       "1:1",
			SafetyFilterLevel: "block_some",
			PersonGeneration:  "allow_all",
		},
	}
	endpoint := fmt.Sprintf("%s/models/%s:predict", g.baseURL, url.PathEscape(model))
	log.WithField("prompt_preview", logSnippet(req.Prompt)).Info("imagen_generate_start")

	resp, err := doRequest(callCtx, g.client, http.MethodPost, endpoint, map[string]string{"x-goog-api-key": req.APIKey}, payload)
	if err != nil {
		outcome := transportFailure(model, err)
		log.WithError(err).Warn("imagen_generate_transport_error")
		return outcome
	}
	if resp.status != http.StatusOK {
		outcome := classifyImagenStatus(model, resp.status, apiErrorMessage(resp.body))
		log.WithFields(attemptFields(outcome)).Warn("imagen_generate_failed")
		return outcome
	}

	var parsed imagenPredictResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return failure(OutcomeUnknownFailure, model, resp.status, "decode response: "+err.Error())
	}
	if len(parsed.Predictions) == 0 || parsed.Predictions[0].BytesBase64Encoded == "" {
		return failure(OutcomeUnknownFailure, model, resp.status, "no image returned (prompt may have been filtered)")
	}
	prediction := parsed.Predictions[0]
	data, err := base64.StdEncoding.DecodeString(prediction.BytesBase64Encoded)
	if err != nil || len(data) == 0 {
		return failure(OutcomeUnknownFailure, model, resp.status, "image payload is not valid base64")
	}
	mimeType := strings.TrimSpace(prediction.MimeType)
	if mimeType == "" {
		mimeType = utils.DetectMime(data)
	}
	log.WithField("bytes", len(data)).Info("imagen_generate_succeeded")
	return success(model, "data:"+mimeType+";base64,"+prediction.BytesBase64Encoded)
}

func classifyImagenStatus(model string, status int, detail string) Outcome {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return failure(OutcomeCredentialInvalid, model, status, detail)
	case status == http.StatusNotFound:
		return failure(OutcomeModelUnavailable, model, status, detail)
	case status == http.StatusTooManyRequests:
		return failure(OutcomeQuotaExceeded, model, status, detail)
	case status == http.StatusServiceUnavailable:
		return failure(OutcomeLoading, model, status, detail)
	case status >= 500:
		return failure(OutcomeTransientNetwork, model, status, detail)
	default:
		return failure(OutcomeUnknownFailure, model, status, detail)
	}
}

type imagenModelList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the Imagen models visible to the key.
func (g *Imagen) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key missing")
	}
	callCtx, cancel := withCallTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := doRequest(callCtx, g.client, http.MethodGet, g.baseURL+"/models?pageSize=1000", map[string]string{"x-goog-api-key": apiKey}, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, errors.New(classifyImagenStatus("", resp.status, apiErrorMessage(resp.body)).Error())
	}
	var parsed imagenModelList
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	var models []string
	for _, m := range parsed.Models {
		name := strings.TrimPrefix(m.Name, "models/")
		if strings.Contains(strings.ToLower(name), "imagen") {
			models = append(models, name)
		}
	}
	if len(models) == 0 {
		return nil, errors.New("no Imagen models available for this key")
	}
	sort.Strings(models)
	return models, nil
}

// TestModel fetches the model metadata without generating anything.
func (g *Imagen) TestModel(ctx context.Context, apiKey, model string) Outcome {
	model = g.resolveModel(model)
	callCtx, cancel := withCallTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := doRequest(callCtx, g.client, http.MethodGet, g.baseURL+"/models/"+url.PathEscape(model), map[string]string{"x-goog-api-key": apiKey}, nil)
	if err != nil {
		return transportFailure(model, err)
	}
	if resp.status != http.StatusOK {
		return classifyImagenStatus(model, resp.status, apiErrorMessage(resp.body))
	}
	return success(model, model)
}

var _ ImageClient = (*Imagen)(nil)
