package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathtutor/chat-gateway/internal/chat"
)

func sseChunk(text string) string {
	payload, _ := json.Marshal(geminiResponse{
		Candidates: []geminiCandidate{{Content: &geminiContent{Parts: []geminiPart{{Text: text}}}}},
	})

	return "data: " + string(payload) + "\n\n"
}

func collectEvents(t *testing.T, events <-chan Event) (deltas []string, terminal error) {
	t.Helper()

	for ev := range events {
		if ev.Err != nil {
			return deltas, ev.Err
		}

		deltas = append(deltas, ev.Delta)
	}

	return deltas, nil
}

func TestGeminiAdapter_StreamsDeltasInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gemini-2.0-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("The answer "))
		fmt.Fprint(w, sseChunk("is 2."))
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[]},\"finishReason\":\"STOP\"}]}\n\n")
	}))
	defer server.Close()

	adapter := NewGeminiAdapter("test-key", testLogger())
	adapter.baseURL = server.URL

	events, err := adapter.Stream(context.Background(), Request{
		SystemPrompt: "You are a tutor.",
		Message:      "solve x+1=2",
		Model:        "gemini-2.0-flash",
	})
	require.NoError(t, err)

	deltas, terminal := collectEvents(t, events)
	assert.NoError(t, terminal)
	assert.Equal(t, []string{"The answer ", "is 2."}, deltas)
}

func TestGeminiAdapter_RequestShape(t *testing.T) {
	var captured geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("ok"))
	}))
	defer server.Close()

	adapter := NewGeminiAdapter("test-key", testLogger())
	adapter.baseURL = server.URL

	events, err := adapter.Stream(context.Background(), Request{
		SystemPrompt: "base instructions",
		History: []chat.Message{
			{Role: chat.RoleUser, Content: "earlier question"},
			{Role: chat.RoleAssistant, Content: "earlier answer"},
		},
		Message: "now this",
		Image:   "data:image/jpeg;base64,payload",
		Model:   "gemini-2.0-flash",
	})
	require.NoError(t, err)
	collectEvents(t, events)

	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "base instructions", captured.SystemInstruction.Parts[0].Text)

	require.Len(t, captured.Contents, 1)
	parts := captured.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "User: earlier question")
	assert.Contains(t, parts[0].Text, "Assistant: earlier answer")
	assert.Contains(t, parts[0].Text, "Student: now this")

	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/jpeg", parts[1].InlineData.MIMEType)
	assert.Equal(t, "payload", parts[1].InlineData.Data)

	assert.Equal(t, 1, captured.GenerationConfig.CandidateCount)
	assert.Equal(t, 2048, captured.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, 40, captured.GenerationConfig.TopK)
}

func TestGeminiAdapter_UpstreamRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`)
	}))
	defer server.Close()

	adapter := NewGeminiAdapter("bad-key", testLogger())
	adapter.baseURL = server.URL

	_, err := adapter.Stream(context.Background(), Request{Message: "hi", Model: "gemini-2.0-flash"})
	require.Error(t, err)

	perr, ok := AsProviderError(err)
	require.True(t, ok, "rejections are classified before they reach the handler")
	assert.Equal(t, CategoryAuth, perr.Category)
	assert.Contains(t, perr.Message, "API key not valid")
}

func TestGeminiAdapter_SafetyBlockMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("partial "))
		fmt.Fprint(w, "data: {\"candidates\":[{\"finishReason\":\"SAFETY\"}]}\n\n")
	}))
	defer server.Close()

	adapter := NewGeminiAdapter("test-key", testLogger())
	adapter.baseURL = server.URL

	events, err := adapter.Stream(context.Background(), Request{Message: "hi", Model: "gemini-2.0-flash"})
	require.NoError(t, err)

	deltas, terminal := collectEvents(t, events)
	assert.Equal(t, []string{"partial "}, deltas, "deltas before the block are preserved")

	perr, ok := AsProviderError(terminal)
	require.True(t, ok)
	assert.Equal(t, CategoryPolicy, perr.Category)
}

func TestGeminiAdapter_MalformedChunksAreSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {broken json\n\n")
		fmt.Fprint(w, sseChunk("still fine"))
	}))
	defer server.Close()

	adapter := NewGeminiAdapter("test-key", testLogger())
	adapter.baseURL = server.URL

	events, err := adapter.Stream(context.Background(), Request{Message: "hi", Model: "gemini-2.0-flash"})
	require.NoError(t, err)

	deltas, terminal := collectEvents(t, events)
	assert.NoError(t, terminal)
	assert.Equal(t, []string{"still fine"}, deltas)
}

func TestGeminiAdapter_MissingCredential(t *testing.T) {
	adapter := NewGeminiAdapter("", testLogger())

	require.Error(t, adapter.Ready())

	_, err := adapter.Stream(context.Background(), Request{Message: "hi", Model: "gemini-2.0-flash"})
	assert.Error(t, err)
}

func TestGeminiAdapter_UnknownVariant(t *testing.T) {
	adapter := NewGeminiAdapter("key", testLogger())

	_, err := adapter.Stream(context.Background(), Request{Message: "hi", Model: "gemini-9000"})
	assert.Error(t, err)
}
