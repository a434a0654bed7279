package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// OutcomeKind is the closed set of results a provider call can end in.
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeCredentialInvalid OutcomeKind = "credential_invalid"
	OutcomeModelUnavailable  OutcomeKind = "model_unavailable"
	OutcomeLoading           OutcomeKind = "loading"
	OutcomeQuotaExceeded     OutcomeKind = "quota_exceeded"
	OutcomeTransientNetwork  OutcomeKind = "transient_network"
	OutcomeUnknownFailure    OutcomeKind = "unknown_failure"
)

// Outcome is the typed result of one provider call. Payload is set only on
// success and holds an http(s) URL or a data URL.
type Outcome struct {
	Kind       OutcomeKind
	Payload    string
	Model      string
	StatusCode int
	Detail     string
}

func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess && o.Payload != ""
}

// Error renders the failure for diagnostics; successful outcomes return "".
func (o Outcome) Error() string {
	if o.Kind == OutcomeSuccess {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(o.Kind))
	if o.StatusCode > 0 {
		fmt.Fprintf(&b, " (http %d)", o.StatusCode)
	}
	if o.Detail != "" {
		b.WriteString(": ")
		b.WriteString(o.Detail)
	}
	return b.String()
}

func success(model, payload string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Model: model, Payload: payload, StatusCode: http.StatusOK}
}

func failure(kind OutcomeKind, model string, status int, detail string) Outcome {
	return Outcome{Kind: kind, Model: model, StatusCode: status, Detail: logSnippet(detail)}
}

// transportFailure classifies an error raised before any HTTP status was read.
func transportFailure(model string, err error) Outcome {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failure(OutcomeTransientNetwork, model, 0, "request timed out")
	case errors.Is(err, context.Canceled):
		return failure(OutcomeTransientNetwork, model, 0, "request cancelled")
	case errors.As(err, &netErr):
		return failure(OutcomeTransientNetwork, model, 0, netErr.Error())
	default:
		return failure(OutcomeTransientNetwork, model, 0, err.Error())
	}
}
