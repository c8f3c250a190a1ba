package openaichat

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/openai/openai-go"

	"github.com/parleylabs/parley/pkg/inference"
)

// classifyError maps SDK and transport failures onto the error
// taxonomy the retry layer matches on. Rate-limit, timeout, connection
// and 5xx failures are transient; everything reported by the backend
// as a request problem is fatal.
func classifyError(model string, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &inference.ProviderError{
			Kind:   classifyStatus(apierr),
			Model:  model,
			Status: apierr.StatusCode,
			Err:    err,
		}
	}

	kind := inference.KindConnection
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = inference.KindTimeout
	case errors.As(err, &nerr) && nerr.Timeout():
		kind = inference.KindTimeout
	case errors.Is(err, context.Canceled):
		// Caller cancellation is not a provider failure; pass through
		// so nothing upstream retries it.
		return err
	}
	return &inference.ProviderError{
		Kind:  kind,
		Model: model,
		Err:   err,
	}
}

func classifyStatus(apierr *openai.Error) inference.ErrorKind {
	switch {
	case apierr.StatusCode == http.StatusTooManyRequests:
		return inference.KindRateLimited
	case apierr.StatusCode >= 500:
		return inference.KindServer
	case apierr.StatusCode == http.StatusUnauthorized, apierr.StatusCode == http.StatusForbidden:
		return inference.KindAuth
	case apierr.StatusCode == http.StatusNotFound:
		return inference.KindNotFound
	case apierr.Code == "content_policy_violation":
		return inference.KindContentPolicy
	default:
		return inference.KindBadRequest
	}
}
