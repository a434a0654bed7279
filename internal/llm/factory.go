package llm

import (
	"fmt"
	"net/http"
	"strings"

	"genstudio/internal/config"
)

const (
	VideoBackendGradio     = "gradio"
	VideoBackendVolcengine = "volcengine"
)

// NewImageClients returns the text-to-image clients in fallback priority order.
func NewImageClients(cfg config.Config, client *http.Client) []ImageClient {
	client = newHTTPClient(client)
	return []ImageClient{
		NewImagen(cfg.ImagenBaseURL, cfg.ImagenDefaultModel, cfg.ImagenTimeout, client),
		NewOpenAIImages(cfg.OpenAIBaseURL, cfg.OpenAIDefaultModel, cfg.OpenAITimeout, client),
		NewHuggingFace(cfg.HuggingFaceBaseURL, cfg.HuggingFaceWhoAmIURL, cfg.HuggingFaceDefaultModel, cfg.HuggingFaceTimeout, client),
	}
}

// NewVideoBackend instantiates the configured image-to-video backend.
func NewVideoBackend(cfg config.Config, client *http.Client) (VideoBackend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.VideoBackend)) {
	case "", VideoBackendGradio:
		return NewGradioVideo(cfg.GradioSpaceURL, cfg.GradioModel, cfg.GradioTimeout, client), nil
	case VideoBackendVolcengine:
		return NewVolcengineVideo(cfg.VolcengineAPIKey, cfg.VolcengineVideoModel, cfg.VolcenginePollEvery, cfg.VideoTimeout)
	default:
		return nil, fmt.Errorf("unsupported video backend: %s", cfg.VideoBackend)
	}
}
