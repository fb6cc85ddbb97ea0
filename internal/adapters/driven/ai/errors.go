package ai

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// classify wraps a go-openai error. Client errors that a retry cannot fix
// become ErrInvalidInput; everything else keeps its cause for the retry layer.
func classify(msg string, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", msg, err)
	case status >= 400 && status < 500:
		return fmt.Errorf("%s: %w: %v", msg, domain.ErrInvalidInput, err)
	case status >= 500:
		return fmt.Errorf("%s: %w: %v", msg, domain.ErrServiceUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
