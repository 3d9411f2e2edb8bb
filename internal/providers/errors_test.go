package providers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyGemini_StructuredStatus(t *testing.T) {
	testCases := []struct {
		status   string
		expected Category
	}{
		{"UNAUTHENTICATED", CategoryAuth},
		{"PERMISSION_DENIED", CategoryForbidden},
		{"NOT_FOUND", CategoryNotFound},
		{"RESOURCE_EXHAUSTED", CategoryQuota},
		{"UNAVAILABLE", CategoryUpstream},
	}

	for _, tc := range testCases {
		perr := classifyGemini(tc.status, "detail", nil)
		assert.Equal(t, tc.expected, perr.Category, "status %s", tc.status)
		assert.Equal(t, "detail", perr.Message, "original message is carried")
	}
}

func TestClassifyGemini_MessageFallback(t *testing.T) {
	testCases := []struct {
		message  string
		expected Category
	}{
		{"API key not valid. Please pass a valid API key.", CategoryAuth},
		{"Quota exceeded for quota metric 'Generate requests'", CategoryQuota},
		{"The response was blocked due to safety settings", CategoryPolicy},
		{"connection reset by peer", CategoryUpstream},
	}

	for _, tc := range testCases {
		perr := classifyGemini("", tc.message, nil)
		assert.Equal(t, tc.expected, perr.Category, "message %q", tc.message)
	}
}

func TestClassifyGemini_PriorityOrder(t *testing.T) {
	// credential beats quota when both substrings appear
	perr := classifyGemini("", "API key quota problem", nil)
	assert.Equal(t, CategoryAuth, perr.Category)
}

func TestStreamUnavailable(t *testing.T) {
	testCases := []struct {
		message string
		want    bool
	}{
		{"Your organization must be verified to stream this model", true},
		{"stream is not supported for this model", true},
		{"organization verification required", true},
		{"organization has insufficient credit", false},
		{"invalid request", false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, streamUnavailable(tc.message), "message %q", tc.message)
	}
}

func TestClassifyOpenAI_NonAPIError(t *testing.T) {
	perr := classifyOpenAI(errors.New("dial tcp: connection refused"))
	assert.Equal(t, CategoryUpstream, perr.Category)

	perr = classifyOpenAI(errors.New("streaming is disabled for this organization"))
	assert.Equal(t, CategoryStreamUnavailable, perr.Category)
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := fmt.Errorf("context: %w", newError(CategoryQuota, "quota exceeded", cause))

	perr, ok := AsProviderError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CategoryQuota, perr.Category)
	assert.ErrorIs(t, wrapped, cause)
}
