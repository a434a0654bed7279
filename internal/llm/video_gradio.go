package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"genstudio/internal/utils"

	"github.com/sirupsen/logrus"
)

const (
	defaultMotionPrompt  = "Make this image come alive with dynamic, cinematic human motion. Create smooth, natural, lifelike animation with fluid transitions, expressive body movement, realistic physics, and elegant camera flow."
	motionNegativePrompt = "low quality, worst quality, motion artifacts, unstable motion, jitter, frame jitter, wobbling limbs, motion distortion, inconsistent movement, robotic movement"

	gradioSteps          = 6
	gradioDurationSecs   = 3.5
	gradioGuidanceScale  = 1
	gradioGuidanceScale2 = 1
)

// GradioVideo submits image-to-video jobs to a Gradio space.
type GradioVideo struct {
	spaceURL string
	model    string
	timeout  time.Duration
	client   *http.Client
}

func NewGradioVideo(spaceURL, model string, timeout time.Duration, client *http.Client) *GradioVideo {
	return &GradioVideo{
		spaceURL: strings.TrimRight(strings.TrimSpace(spaceURL), "/"),
		model:    strings.TrimSpace(model),
		timeout:  timeout,
		client:   newHTTPClient(client),
	}
}

func (g *GradioVideo) Name() string  { return "gradio-spaces" }
func (g *GradioVideo) Model() string { return g.model }

type gradioResponse struct {
	Data  []json.RawMessage `json:"data"`
	Error string            `json:"error"`
}

func (g *GradioVideo) GenerateVideo(ctx context.Context, req VideoRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", errors.New("source image is empty")
	}
	log := providerLogger(ctx, g.Name(), g.model)
	callCtx, cancel := withCallTimeout(ctx, g.timeout)
	defer cancel()

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = defaultMotionPrompt
	}
	payload := map[string]any{
		"data": []any{
			utils.BuildDataURL(req.MimeType, req.Image),
			prompt,
			gradioSteps,
			motionNegativePrompt,
			gradioDurationSecs,
			gradioGuidanceScale,
			gradioGuidanceScale2,
			req.Seed,
			true,
		},
	}

	log.WithFields(logrus.Fields{"seed": req.Seed, "image_bytes": len(req.Image)}).Info("gradio_video_start")
	resp, err := doRequest(callCtx, g.client, http.MethodPost, g.spaceURL+"/api/predict", nil, payload)
	if err != nil {
		return "", fmt.Errorf("video backend unreachable: %w", err)
	}
	if resp.status != http.StatusOK {
		return "", fmt.Errorf("video backend http %d: %s", resp.status, logSnippet(apiErrorMessage(resp.body)))
	}

	var parsed gradioResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return "", fmt.Errorf("decode video response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("video backend error: %s", logSnippet(parsed.Error))
	}
	if len(parsed.Data) == 0 {
		return "", errors.New("video backend returned no output")
	}
	videoURL := g.resolveOutput(parsed.Data[0])
	if videoURL == "" {
		return "", errors.New("video backend output has no video reference")
	}
	log.Info("gradio_video_succeeded")
	return videoURL, nil
}

type gradioFile struct {
	URL   string `json:"url"`
	Path  string `json:"path"`
	Name  string `json:"name"`
	Video *struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	} `json:"video"`
}

// resolveOutput accepts a URL, a server-side path or a Gradio file object.
func (g *GradioVideo) resolveOutput(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return g.fileURL(asString)
	}
	var file gradioFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return ""
	}
	for _, candidate := range []string{file.URL, videoField(file, true), videoField(file, false), file.Path, file.Name} {
		if resolved := g.fileURL(candidate); resolved != "" {
			return resolved
		}
	}
	return ""
}

func videoField(file gradioFile, url bool) string {
	if file.Video == nil {
		return ""
	}
	if url {
		return file.Video.URL
	}
	return file.Video.Path
}

func (g *GradioVideo) fileURL(value string) string {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return ""
	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"), strings.HasPrefix(value, "data:"):
		return value
	default:
		return g.spaceURL + "/file=" + value
	}
}

var _ VideoBackend = (*GradioVideo)(nil)
