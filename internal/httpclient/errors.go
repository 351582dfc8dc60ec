package httpclient

import (
	"fmt"
	"net/http"

	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

// maxErrorBody caps how much of an error response is kept in the error context.
const maxErrorBody = 256

// StatusErrorHandler maps HTTP error statuses to application errors for provider.
// 429 becomes CodeRateLimitExceeded, other 4xx/5xx become CodeSourceUnavailable.
func StatusErrorHandler(provider string) ResponseErrorHandler {
	return func(statusCode int, body []byte) error {
		if statusCode < http.StatusBadRequest {
			return nil
		}

		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		context := fmt.Sprintf("%s: HTTP %d: %s", provider, statusCode, snippet)

		if statusCode == http.StatusTooManyRequests {
			return apperror.New(apperror.CodeRateLimitExceeded, apperror.WithContext(context))
		}
		return apperror.New(apperror.CodeSourceUnavailable, apperror.WithContext(context))
	}
}
