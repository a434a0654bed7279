package service

import (
	"fmt"

	"genstudio/internal/config"
	"genstudio/internal/entity"
)

const noCredentialMessage = "No API key configured. Please add your API key in Settings."

// Verdict is the outcome of the usage gate.
type Verdict int

const (
	VerdictAllowed Verdict = iota
	VerdictSample
	VerdictDenied
)

// SampleResult is the placeholder returned instead of a real generation.
type SampleResult struct {
	URL     string
	Message string
}

// Decision is the gate result. Counter is set when Verdict is VerdictAllowed.
type Decision struct {
	Verdict Verdict
	Counter entity.CreditCounter
	Sample  *SampleResult
	Denial  *PolicyDeniedError
}

// UsageGate decides, without side effects, whether an account may generate.
type UsageGate struct {
	counters map[entity.Modality]entity.CreditCounter
	samples  map[entity.Modality]string
	noKey    map[entity.Modality]string
}

func NewUsageGate(cfg config.Config) (*UsageGate, error) {
	imageCounter, err := entity.ParseCreditCounter(cfg.ImageCreditCounter)
	if err != nil {
		return nil, fmt.Errorf("image credit counter: %w", err)
	}
	videoCounter, err := entity.ParseCreditCounter(cfg.VideoCreditCounter)
	if err != nil {
		return nil, fmt.Errorf("video credit counter: %w", err)
	}
	return &UsageGate{
		counters: map[entity.Modality]entity.CreditCounter{
			entity.ModImage: imageCounter,
			entity.ModVideo: videoCounter,
		},
		samples: map[entity.Modality]string{
			entity.ModImage: cfg.SampleImageURL,
			entity.ModVideo: cfg.SampleVideoURL,
		},
		noKey: map[entity.Modality]string{
			entity.ModImage: cfg.NoKeyImageURL,
			entity.ModVideo: cfg.NoKeyVideoURL,
		},
	}, nil
}

// CounterFor returns the credit counter debited for the kind.
func (g *UsageGate) CounterFor(kind entity.Modality) entity.CreditCounter {
	if counter, ok := g.counters[kind]; ok {
		return counter
	}
	return entity.CounterImage
}

// Authorize applies the tier, balance and credential checks in that order.
func (g *UsageGate) Authorize(user *entity.DbUser, kind entity.Modality) Decision {
	if user == nil || user.Tier == entity.TierGuest {
		return Decision{
			Verdict: VerdictDenied,
			Denial:  &PolicyDeniedError{Code: DenialSignupRequired, Reason: signupRequiredMessage},
		}
	}

	if user.Tier == entity.TierFree {
		return Decision{
			Verdict: VerdictSample,
			Sample:  &SampleResult{URL: g.samples[kind], Message: sampleMessage(kind)},
		}
	}

	counter := g.CounterFor(kind)
	if counter.Balance(user) < 1 {
		return Decision{Verdict: VerdictDenied, Denial: insufficientCredits()}
	}

	if !user.Credentials.Any() {
		return Decision{
			Verdict: VerdictSample,
			Sample:  &SampleResult{URL: g.noKey[kind], Message: noCredentialMessage},
		}
	}

	return Decision{Verdict: VerdictAllowed, Counter: counter}
}

func sampleMessage(kind entity.Modality) string {
	if kind == entity.ModVideo {
		return "This is a sample. Upgrade to generate real AI videos."
	}
	return "This is a sample. Upgrade to generate real AI images."
}
