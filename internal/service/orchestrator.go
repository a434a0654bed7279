package service

import (
	"context"
	"time"

	"genstudio/internal/entity"
	"genstudio/internal/llm"

	"github.com/sirupsen/logrus"
)

// ImageResult is the winning provider output plus the failures before it.
type ImageResult struct {
	Payload  string
	Provider entity.ProviderID
	Model    string
	Attempts []ProviderAttempt
}

// Orchestrator tries image providers in fixed priority order and returns the
// first success. It performs no writes.
type Orchestrator struct {
	clients  map[entity.ProviderID]llm.ImageClient
	parallel bool
}

// NewOrchestrator indexes clients by provider; the attempt order always
// follows entity.ProviderPriority.
func NewOrchestrator(clients []llm.ImageClient, parallel bool) *Orchestrator {
	indexed := make(map[entity.ProviderID]llm.ImageClient, len(clients))
	for _, c := range clients {
		if c != nil {
			indexed[c.Provider()] = c
		}
	}
	return &Orchestrator{clients: indexed, parallel: parallel}
}

type candidate struct {
	client     llm.ImageClient
	credential entity.ProviderCredential
}

// candidates returns the clients the account holds a key for, in priority order.
func (o *Orchestrator) candidates(creds entity.Credentials) []candidate {
	var out []candidate
	for _, p := range entity.ProviderPriority {
		client, ok := o.clients[p]
		cred := creds.For(p)
		if !ok || !cred.Present() {
			continue
		}
		out = append(out, candidate{client: client, credential: cred})
	}
	return out
}

// GenerateImage returns *AllProvidersFailedError when no provider succeeds.
func (o *Orchestrator) GenerateImage(ctx context.Context, creds entity.Credentials, prompt string) (*ImageResult, error) {
	candidates := o.candidates(creds)
	if o.parallel && len(candidates) > 1 {
		return o.race(ctx, creds, candidates, prompt)
	}

	var attempts []ProviderAttempt
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempt := runAttempt(ctx, c, prompt)
		if attempt.Outcome.Succeeded() {
			return &ImageResult{
				Payload:  attempt.Outcome.Payload,
				Provider: attempt.Provider,
				Model:    attempt.Outcome.Model,
				Attempts: attempts,
			}, nil
		}
		attempts = append(attempts, attempt)
	}
	return nil, &AllProvidersFailedError{Attempts: attempts, Missing: creds.Missing()}
}

// race calls every candidate at once. A result is reported only after every
// higher-priority candidate has failed, so the chosen provider matches the
// sequential order.
func (o *Orchestrator) race(ctx context.Context, creds entity.Credentials, candidates []candidate, prompt string) (*ImageResult, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type slot struct {
		index   int
		attempt ProviderAttempt
	}
	done := make(chan slot, len(candidates))
	for i, c := range candidates {
		go func(i int, c candidate) {
			done <- slot{index: i, attempt: runAttempt(raceCtx, c, prompt)}
		}(i, c)
	}

	results := make([]*ProviderAttempt, len(candidates))
	next := 0
	for received := 0; received < len(candidates); received++ {
		var s slot
		select {
		case s = <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		results[s.index] = &s.attempt

		for next < len(results) && results[next] != nil {
			if results[next].Outcome.Succeeded() {
				winner := results[next]
				attempts := make([]ProviderAttempt, 0, next)
				for _, r := range results[:next] {
					attempts = append(attempts, *r)
				}
				return &ImageResult{
					Payload:  winner.Outcome.Payload,
					Provider: winner.Provider,
					Model:    winner.Outcome.Model,
					Attempts: attempts,
				}, nil
			}
			next++
		}
	}

	attempts := make([]ProviderAttempt, 0, len(results))
	for _, r := range results {
		attempts = append(attempts, *r)
	}
	return nil, &AllProvidersFailedError{Attempts: attempts, Missing: creds.Missing()}
}

func runAttempt(ctx context.Context, c candidate, prompt string) ProviderAttempt {
	started := time.Now()
	outcome := c.client.GenerateImage(ctx, llm.ImageRequest{
		Prompt: prompt,
		APIKey: c.credential.APIKey,
		Model:  c.credential.Model,
	})
	attempt := ProviderAttempt{Provider: c.client.Provider(), Outcome: outcome, Duration: time.Since(started)}

	entry := logrus.WithContext(ctx).WithFields(logrus.Fields{
		"provider":    attempt.Provider,
		"model":       outcome.Model,
		"outcome":     outcome.Kind,
		"duration_ms": attempt.Duration.Milliseconds(),
	})
	if outcome.Succeeded() {
		entry.Info("provider attempt succeeded")
	} else {
		entry.WithField("detail", outcome.Detail).Warn("provider attempt failed")
	}
	return attempt
}
