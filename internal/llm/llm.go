package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"genstudio/internal/entity"
)

// maxResponseBytes caps provider response bodies; images arrive inline.
const maxResponseBytes = 32 << 20

// ImageRequest carries one text-to-image call. Model is the account's
// selected model and may be empty.
type ImageRequest struct {
	Prompt string
	APIKey string
	Model  string
}

// ImageClient is one text-to-image provider. Implementations perform exactly
// one network request per GenerateImage call and never retry.
type ImageClient interface {
	Provider() entity.ProviderID
	GenerateImage(ctx context.Context, req ImageRequest) Outcome
	// ListModels lists the models the key can use; an error means the key
	// could not be verified.
	ListModels(ctx context.Context, apiKey string) ([]string, error)
	TestModel(ctx context.Context, apiKey, model string) Outcome
}

// VideoRequest is the input of the image-to-video stage.
type VideoRequest struct {
	Image    []byte
	MimeType string
	Prompt   string
	Seed     int
}

// VideoBackend turns a still image into a video and returns its URL.
type VideoBackend interface {
	Name() string
	Model() string
	GenerateVideo(ctx context.Context, req VideoRequest) (string, error)
}

type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

func doRequest(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload any) (*rawResponse, error) {
	var body io.Reader
	if payload != nil {
		bs, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &rawResponse{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// apiErrorMessage pulls a message out of the common JSON error envelopes.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return string(body)
	}
	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
			Type    string `json:"type"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if err := json.Unmarshal(envelope.Error, &plain); err == nil && plain != "" {
			return plain
		}
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return string(body)
}

func newHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{}
}
