package httpclient

import (
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// StatusError reports a non-2xx response from an upstream service. Its
// message is shown to shoppers verbatim, so it carries only the status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return apperrors.ErrUpstream
}

// CheckStatus returns nil for a 2xx response. Otherwise it drains and
// closes the body and returns a *StatusError.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	return &StatusError{StatusCode: resp.StatusCode}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
