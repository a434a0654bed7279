package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"genstudio/internal/entity"
	"genstudio/internal/llm"
)

// DenialCode identifies why the usage gate refused a request.
type DenialCode string

const (
	DenialSignupRequired      DenialCode = "signup_required"
	DenialInsufficientCredits DenialCode = "insufficient_credits"
)

const (
	signupRequiredMessage      = "Please sign up to use AI features"
	insufficientCreditsMessage = "Insufficient credits. Please upgrade your plan."
)

var (
	// ErrEmptyPrompt 表示请求缺少提示词。
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrUnknownProvider 表示服务商标识无法识别。
	ErrUnknownProvider = errors.New("unknown provider")
)

// PolicyDeniedError is returned when the account may not generate. It is
// never retried.
type PolicyDeniedError struct {
	Code   DenialCode
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return e.Reason
}

func insufficientCredits() *PolicyDeniedError {
	return &PolicyDeniedError{Code: DenialInsufficientCredits, Reason: insufficientCreditsMessage}
}

// ProviderAttempt records one provider call of a single orchestration run.
type ProviderAttempt struct {
	Provider entity.ProviderID
	Outcome  llm.Outcome
	Duration time.Duration
}

// AllProvidersFailedError lists every failed attempt and the providers that
// were skipped because the account has no key for them.
type AllProvidersFailedError struct {
	Attempts []ProviderAttempt
	Missing  []entity.ProviderID
}

func (e *AllProvidersFailedError) Error() string {
	var b strings.Builder
	b.WriteString("All image generation providers failed.")
	for _, attempt := range e.Attempts {
		fmt.Fprintf(&b, " %s: %s.", attempt.Provider.DisplayName(), attempt.Outcome.Error())
	}
	if len(e.Missing) > 0 {
		labels := make([]string, 0, len(e.Missing))
		for _, p := range e.Missing {
			labels = append(labels, p.CredentialLabel())
		}
		fmt.Fprintf(&b, " Missing API keys: %s.", strings.Join(labels, ", "))
	}
	return b.String()
}

// Diagnostics converts the attempts for API responses.
func (e *AllProvidersFailedError) Diagnostics() []entity.AttemptDiagnostic {
	out := make([]entity.AttemptDiagnostic, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		out = append(out, entity.AttemptDiagnostic{
			Provider: attempt.Provider,
			Outcome:  string(attempt.Outcome.Kind),
			Status:   attempt.Outcome.StatusCode,
			Detail:   attempt.Outcome.Error(),
		})
	}
	return out
}

// VideoStage names the pipeline step a video generation failed in.
type VideoStage string

const (
	StageSourceImage  VideoStage = "source_image"
	StageVideoBackend VideoStage = "video_backend"
)

// VideoGenerationFailedError separates "no source image" from "video backend
// produced nothing".
type VideoGenerationFailedError struct {
	Stage VideoStage
	Cause error
}

func (e *VideoGenerationFailedError) Error() string {
	switch e.Stage {
	case StageSourceImage:
		return "Could not create the source image for the video: " + e.Cause.Error()
	default:
		return "Video generation failed: " + e.Cause.Error()
	}
}

func (e *VideoGenerationFailedError) Unwrap() error {
	return e.Cause
}
