package gmail

import (
	"context"
	"errors"
	"net/http"

	syncdomain "mailflow-backend/internal/mailsync/domain"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Reasons Google reports with 403 that are really throttling.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"backendError":          true,
}

// classifyError maps a Gmail client error onto the provider taxonomy.
// notFoundKind decides what a 404 means for the operation.
func classifyError(op string, err error, notFoundKind syncdomain.ErrorKind) *syncdomain.ProviderError {
	pe := &syncdomain.ProviderError{Op: op, Kind: syncdomain.KindTransient, Err: err}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.Code
		switch {
		case apiErr.Code == http.StatusNotFound:
			pe.Kind = notFoundKind
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			pe.Kind = syncdomain.KindTransient
		case apiErr.Code == http.StatusForbidden && isRateLimited(apiErr):
			pe.Kind = syncdomain.KindTransient
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			pe.Kind = syncdomain.KindAuth
		default:
			pe.Kind = syncdomain.KindUnknown
		}
		return pe
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		pe.Kind = syncdomain.KindAuth
		return pe
	}

	// Network failures and deadlines are retried by the next notification
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		pe.Kind = syncdomain.KindTransient
	}
	return pe
}

func isRateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if rateLimitReasons[item.Reason] {
			return true
		}
	}
	return false
}
