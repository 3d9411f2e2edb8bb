package providers

import (
	"log/slog"

	"github.com/mathtutor/chat-gateway/internal/config"
	"github.com/mathtutor/chat-gateway/internal/prompt"
)

// Initialize registers the built-in model table. The flash variant carries
// the short truncated history window; everything else gets the large one.
func (r *Registry) Initialize(cfg *config.Config, logger *slog.Logger) {
	gemini := NewGeminiAdapter(cfg.Gemini.APIKey, logger)
	oai := NewOpenAIAdapter(cfg.OpenAI, logger)

	r.Register("gemini-2.0-flash", ModelInfo{Adapter: gemini, Window: prompt.FastWindow})
	r.Register("gemini-1.5-pro", ModelInfo{Adapter: gemini, Window: prompt.LargeWindow})
	r.Register("gpt-4o-mini", ModelInfo{Adapter: oai, Window: prompt.LargeWindow})
	r.Register("gpt-4o", ModelInfo{Adapter: oai, Window: prompt.LargeWindow})
}
