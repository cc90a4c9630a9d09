// Package providers adapts analysis backends to a single call contract.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const (
	OpenAI      models.ProviderID = "openai"
	Anthropic   models.ProviderID = "anthropic"
	Vader       models.ProviderID = "vader"
	Keywords    models.ProviderID = "keywords"
	HuggingFace models.ProviderID = "huggingface"
)

type Provider interface {
	ID() models.ProviderID
	Analyze(ctx context.Context, text string) (models.ProviderResult, error)
}

// HealthChecker is implemented by providers that can be health checked out of band.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type ErrorKind string

const (
	KindTimeout     ErrorKind = "Timeout"
	KindRateLimited ErrorKind = "RateLimited"
	KindMalformed   ErrorKind = "Malformed"
	KindUnavailable ErrorKind = "Unavailable"
)

// ErrMalformed marks output that could not be turned into a result.
var ErrMalformed = errors.New("malformed provider output")

type ProviderError struct {
	Provider models.ProviderID
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could plausibly succeed.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindUnavailable
}

func NewProviderError(provider models.ProviderID, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// Classify maps an arbitrary error from a provider call onto an ErrorKind.
func Classify(provider models.ProviderID, err error) *ProviderError {
	if err == nil {
		return nil
	}
	if perr, ok := AsProviderError(err); ok {
		return perr
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(provider, KindTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewProviderError(provider, KindTimeout, err)
	case errors.Is(err, ErrMalformed):
		return NewProviderError(provider, KindMalformed, err)
	default:
		return NewProviderError(provider, KindUnavailable, err)
	}
}

// KindForStatus maps an upstream HTTP status onto an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindUnavailable
	}
}
