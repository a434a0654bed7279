package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const logSnippetLimit = 120

func providerLogger(ctx context.Context, providerID, model string) *logrus.Entry {
	fields := logrus.Fields{
		"provider": providerID,
	}
	if trimmedModel := strings.TrimSpace(model); trimmedModel != "" {
		fields["model"] = trimmedModel
	}

	entry := logrus.WithFields(fields)
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	return entry
}

func attemptFields(o Outcome) logrus.Fields {
	fields := logrus.Fields{"outcome": string(o.Kind)}
	if o.StatusCode > 0 {
		fields["status"] = o.StatusCode
	}
	if o.Detail != "" {
		fields["detail"] = o.Detail
	}
	return fields
}

func logSnippet(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	runes := []rune(value)
	if len(runes) <= logSnippetLimit {
		return value
	}

	return string(runes[:logSnippetLimit]) + "..."
}

// withCallTimeout bounds a single provider call; zero keeps the parent deadline.
func withCallTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
