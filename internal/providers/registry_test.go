package providers

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathtutor/chat-gateway/internal/config"
	"github.com/mathtutor/chat-gateway/internal/prompt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegistry_Initialize(t *testing.T) {
	registry := NewRegistry()
	registry.Initialize(&config.Config{}, testLogger())

	assert.Equal(t, []string{"gemini-1.5-pro", "gemini-2.0-flash", "gpt-4o", "gpt-4o-mini"}, registry.Models())

	flash, ok := registry.Lookup("gemini-2.0-flash")
	require.True(t, ok)
	assert.Equal(t, "gemini", flash.Adapter.Name())
	assert.Equal(t, prompt.FastWindow, flash.Window, "fast variant gets the short truncated window")

	large, ok := registry.Lookup("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, "openai", large.Adapter.Name())
	assert.Equal(t, prompt.LargeWindow, large.Window)
}

func TestRegistry_UnknownModel(t *testing.T) {
	registry := NewRegistry()
	registry.Initialize(&config.Config{}, testLogger())

	_, ok := registry.Lookup("claude-3-5-sonnet")
	assert.False(t, ok, "the table is closed; unknown identifiers are rejected")
}

func TestRegistry_VariantTablesMatch(t *testing.T) {
	registry := NewRegistry()
	registry.Initialize(&config.Config{}, testLogger())

	for _, model := range registry.Models() {
		info, _ := registry.Lookup(model)
		switch info.Adapter.Name() {
		case "gemini":
			_, ok := geminiVariants[model]
			assert.True(t, ok, "registered gemini model %s needs generation params", model)
		case "openai":
			_, ok := openaiVariants[model]
			assert.True(t, ok, "registered openai model %s needs variant params", model)
		}
	}
}

func TestParseDataURI(t *testing.T) {
	testCases := []struct {
		name     string
		uri      string
		wantMIME string
		wantData string
	}{
		{"jpeg with base64 marker", "data:image/jpeg;base64,abc123", "image/jpeg", "abc123"},
		{"png", "data:image/png;base64,xyz", "image/png", "xyz"},
		{"no prefix defaults to generic image", "rawbase64payload", "image/png", "rawbase64payload"},
		{"data prefix without comma", "data:image/webp", "image/png", "data:image/webp"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mimeType, data := parseDataURI(tc.uri)
			assert.Equal(t, tc.wantMIME, mimeType)
			assert.Equal(t, tc.wantData, data)
		})
	}
}
