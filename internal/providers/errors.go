package providers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// Category labels a classified upstream failure. Classification happens at
// the adapter boundary; the gateway handler never re-interprets raw provider
// errors.
type Category string

const (
	CategoryAuth              Category = "auth"
	CategoryForbidden         Category = "forbidden"
	CategoryNotFound          Category = "not_found"
	CategoryRateLimit         Category = "rate_limit"
	CategoryQuota             Category = "quota"
	CategoryPolicy            Category = "policy"
	CategoryStreamUnavailable Category = "stream_unavailable"
	CategoryUpstream          Category = "upstream"
)

// Error is a classified provider failure carrying the original message.
type Error struct {
	Category Category
	Message  string
	cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (%s): %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(category Category, message string, cause error) *Error {
	return &Error{Category: category, Message: message, cause: cause}
}

// AsProviderError extracts the classified error, if any.
func AsProviderError(err error) (*Error, bool) {
	var perr *Error
	ok := errors.As(err, &perr)

	return perr, ok
}

// geminiStatusCategories maps the structured `error.status` field of a Gemini
// failure. Structured codes are preferred over message inspection.
var geminiStatusCategories = map[string]Category{
	"UNAUTHENTICATED":    CategoryAuth,
	"PERMISSION_DENIED":  CategoryForbidden,
	"NOT_FOUND":          CategoryNotFound,
	"RESOURCE_EXHAUSTED": CategoryQuota,
	"UNAVAILABLE":        CategoryUpstream,
	"DEADLINE_EXCEEDED":  CategoryUpstream,
}

// classifyGemini maps a Gemini failure to a category: structured status
// first, then message substrings in priority order (credential, quota,
// safety), otherwise a generic provider error.
func classifyGemini(status, message string, cause error) *Error {
	if category, ok := geminiStatusCategories[status]; ok {
		return newError(category, message, cause)
	}

	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "api key"), strings.Contains(lower, "credential"):
		return newError(CategoryAuth, message, cause)
	case strings.Contains(lower, "quota"):
		return newError(CategoryQuota, message, cause)
	case strings.Contains(lower, "safety"), strings.Contains(lower, "blocked"):
		return newError(CategoryPolicy, message, cause)
	}

	return newError(CategoryUpstream, message, cause)
}

// streamUnavailable reports whether an upstream rejection is specifically
// about streaming capability or organization verification. This is the one
// signal that still depends on message text; keeping it here makes the
// fragile substrings a single tested table.
func streamUnavailable(message string) bool {
	lower := strings.ToLower(message)

	return strings.Contains(lower, "stream") ||
		(strings.Contains(lower, "organization") && strings.Contains(lower, "verif"))
}

// classifyOpenAI maps an OpenAI SDK failure to a category, keyed on the
// response status code where one exists. The stream-unavailability signal is
// checked before the generic 4xx mapping so the fallback path can recognize
// it regardless of whether the upstream used 400 or 403.
func classifyOpenAI(err error) *Error {
	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		if streamUnavailable(err.Error()) {
			return newError(CategoryStreamUnavailable, err.Error(), err)
		}

		return newError(CategoryUpstream, err.Error(), err)
	}

	message := apierr.Message
	if message == "" {
		message = apierr.Error()
	}

	if (apierr.StatusCode == 400 || apierr.StatusCode == 403) && streamUnavailable(message) {
		return newError(CategoryStreamUnavailable, message, err)
	}

	switch apierr.StatusCode {
	case 401:
		return newError(CategoryAuth, message, err)
	case 403:
		return newError(CategoryForbidden, message, err)
	case 404:
		return newError(CategoryNotFound, message, err)
	case 429:
		if strings.Contains(strings.ToLower(message), "quota") {
			return newError(CategoryQuota, message, err)
		}

		return newError(CategoryRateLimit, message, err)
	}

	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "content policy"), strings.Contains(lower, "content_filter"):
		return newError(CategoryPolicy, message, err)
	}

	return newError(CategoryUpstream, message, err)
}
