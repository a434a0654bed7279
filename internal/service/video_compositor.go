package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"

	"genstudio/internal/entity"
	"genstudio/internal/llm"
	"genstudio/internal/utils"

	"github.com/sirupsen/logrus"
)

const maxVideoSeed = 1_000_000

// VideoResult is a finished video and the image it was animated from.
type VideoResult struct {
	URL            string
	Backend        string
	Model          string
	Seed           int
	SourceProvider entity.ProviderID
	SourceModel    string
}

// VideoCompositor obtains a still image through the orchestrator and animates
// it with the configured backend. Each stage runs once.
type VideoCompositor struct {
	images     *Orchestrator
	backend    llm.VideoBackend
	httpClient *http.Client
	fetchLimit int64
	seed       func() int
}

func NewVideoCompositor(images *Orchestrator, backend llm.VideoBackend, httpClient *http.Client, fetchLimit int64) *VideoCompositor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &VideoCompositor{
		images:     images,
		backend:    backend,
		httpClient: httpClient,
		fetchLimit: fetchLimit,
		seed:       func() int { return rand.IntN(maxVideoSeed) },
	}
}

// Generate returns *VideoGenerationFailedError on failure.
func (c *VideoCompositor) Generate(ctx context.Context, creds entity.Credentials, prompt string) (*VideoResult, error) {
	log := logrus.WithContext(ctx).WithField("video_backend", c.backend.Name())

	// NeedsImage
	image, err := c.images.GenerateImage(ctx, creds, prompt)
	if err != nil {
		log.WithError(err).Warn("video source image failed")
		return nil, &VideoGenerationFailedError{Stage: StageSourceImage, Cause: err}
	}

	// HaveImage
	media, err := utils.LoadMedia(ctx, c.httpClient, image.Payload, c.fetchLimit)
	if err != nil {
		log.WithError(err).WithField("source", utils.MediaSource(image.Payload)).Warn("video source image unreadable")
		return nil, &VideoGenerationFailedError{
			Stage: StageSourceImage,
			Cause: fmt.Errorf("load image from %s: %w", image.Provider.DisplayName(), err),
		}
	}

	// NeedsVideo
	seed := c.seed()
	videoURL, err := c.backend.GenerateVideo(ctx, llm.VideoRequest{
		Image:    media.Data,
		MimeType: media.MimeType,
		Prompt:   prompt,
		Seed:     seed,
	})
	if err != nil {
		log.WithError(err).Warn("video backend failed")
		return nil, &VideoGenerationFailedError{Stage: StageVideoBackend, Cause: err}
	}

	log.WithFields(logrus.Fields{
		"source_provider": image.Provider,
		"seed":            seed,
	}).Info("video generated")
	return &VideoResult{
		URL:            videoURL,
		Backend:        c.backend.Name(),
		Model:          c.backend.Model(),
		Seed:           seed,
		SourceProvider: image.Provider,
		SourceModel:    image.Model,
	}, nil
}
