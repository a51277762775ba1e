package audit

import (
	"net/http"
	"strings"
)

// Classify maps a finished request to its event type. Status-code derived
// classes take precedence over path/method heuristics: a 403 on an admin
// path is a permission denial, not an admin action.
func Classify(status int, method, path string, authenticated bool) EventType {
	switch {
	case status == http.StatusUnauthorized:
		return EventAuthFailure
	case status == http.StatusForbidden:
		return EventPermissionDenied
	case status == http.StatusTooManyRequests:
		return EventRateLimited
	case status >= 500:
		return EventError
	}

	if strings.HasPrefix(path, "/admin") {
		return EventAdminAction
	}
	// The status route is the credential-check endpoint: an authenticated
	// hit there is an authentication success, not a data read.
	if authenticated && strings.HasSuffix(path, "/status") {
		return EventAuthSuccess
	}
	switch method {
	case http.MethodGet, http.MethodHead:
		return EventDataRead
	case http.MethodPost:
		return EventDataCreate
	case http.MethodPut, http.MethodPatch:
		return EventDataUpdate
	case http.MethodDelete:
		return EventDataDelete
	}
	if authenticated {
		return EventAuthSuccess
	}
	return EventDataRead
}
