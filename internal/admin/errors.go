// Package admin issues single mutations against the remote marketing-analytics
// administration API and classifies their failures.
package admin

import (
	"errors"
	"fmt"
	"strings"
)

// Class is the domain outcome of one failed remote call. Classification
// happens exactly once per item; the engine never retries an individually
// classified failure (only rate-limited waves are retried).
type Class int

const (
	// ClassGeneric covers every remote failure without a more specific
	// classification, including transport exceptions.
	ClassGeneric Class = iota

	// ClassNotFound means the target resource does not exist or is not
	// visible to the caller (HTTP 404).
	ClassNotFound

	// ClassFeatureLimit means the remote API refused the mutation because a
	// plan/feature ceiling is exhausted (HTTP 403 with a limit message body).
	ClassFeatureLimit

	// ClassPermissionDenied means an authorization-class refusal (HTTP 403
	// without a limit message). It aborts the entire batch.
	ClassPermissionDenied

	// ClassRateLimited means the remote API throttled the call (HTTP 429).
	// The whole wave backs off and retries.
	ClassRateLimited
)

func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassFeatureLimit:
		return "feature_limit"
	case ClassPermissionDenied:
		return "permission_denied"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "generic"
	}
}

// RemoteError is a classified non-2xx response from the admin API.
type RemoteError struct {
	Class      Class
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("admin api: %s (status %d): %s", e.Class, e.StatusCode, e.Message)
}

// featureLimitIndicators are the message fragments the remote API uses when a
// 403 means "plan ceiling exhausted" rather than "no permission".
var featureLimitIndicators = []string{
	"limit reached",
	"exceeds the maximum",
	"reached the maximum",
	"feature limit",
	"maximum allowed",
}

// Classify maps an HTTP status and response message to a failure class.
func Classify(statusCode int, message string) Class {
	switch {
	case statusCode == 404:
		return ClassNotFound
	case statusCode == 429:
		return ClassRateLimited
	case statusCode == 403:
		lower := strings.ToLower(message)
		for _, indicator := range featureLimitIndicators {
			if strings.Contains(lower, indicator) {
				return ClassFeatureLimit
			}
		}
		return ClassPermissionDenied
	default:
		return ClassGeneric
	}
}

// ClassOf extracts the class from err, or ClassGeneric for anything that is
// not a RemoteError (transport failures, decode errors).
func ClassOf(err error) Class {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Class
	}
	return ClassGeneric
}

// IsRateLimited reports whether err is a classified 429.
func IsRateLimited(err error) bool {
	return ClassOf(err) == ClassRateLimited
}
