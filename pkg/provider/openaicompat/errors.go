package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/openconduit/conduit/pkg/api"
)

// mapHTTPError converts a non-2xx backend response into an APIError,
// pulling the message out of the OpenAI-style error body when present.
func mapHTTPError(resp *http.Response) *api.APIError {
	message := extractErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		if message == "" {
			message = "invalid request to backend"
		}
		return api.NewInvalidRequestError("", message)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "backend authentication failed"
		}
		// Backend credential problems are a gateway configuration issue,
		// not a caller authentication failure.
		return api.NewServerError(message)

	case resp.StatusCode == http.StatusNotFound:
		if message == "" {
			message = "backend resource not found"
		}
		return api.NewNotFoundError(message)

	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "backend rate limit exceeded"
		}
		return api.NewTooManyRequestsError(message)

	case resp.StatusCode >= http.StatusInternalServerError:
		if message == "" {
			message = fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)
		}
		return api.NewServerError(message)

	default:
		if message == "" {
			message = fmt.Sprintf("unexpected backend error (HTTP %d)", resp.StatusCode)
		}
		return api.NewServerError(message)
	}
}

// mapNetworkError converts a connection-level failure into an APIError.
// Timeouts become model errors; connection failures become server errors.
func mapNetworkError(err error) *api.APIError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return api.NewModelError("backend request timed out: " + err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return api.NewModelError("backend request timed out: " + err.Error())
	}
	return api.NewServerError("backend connection error: " + err.Error())
}

// extractErrorMessage tries to parse the response body as an OpenAI-style
// error envelope and returns the message if found.
func extractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp chatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
