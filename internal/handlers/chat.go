package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/mathtutor/chat-gateway/internal/chat"
	"github.com/mathtutor/chat-gateway/internal/config"
	"github.com/mathtutor/chat-gateway/internal/prompt"
	"github.com/mathtutor/chat-gateway/internal/providers"
	"github.com/mathtutor/chat-gateway/internal/stream"
)

// Machine-checkable rejection reasons.
const (
	CodeInvalidJSON       = "invalid_json"
	CodeMissingMessage    = "missing_message"
	CodeMissingModel      = "missing_model"
	CodeUnknownModel      = "unknown_model"
	CodeMissingCredential = "missing_credential"
	CodeUpstreamFailure   = "upstream_failure"
)

// userFacingError replaces provider-internal error text in anything shown to
// the student.
const userFacingError = "Sorry - something went wrong while generating a response. Please try again."

type ChatHandler struct {
	config   *config.Manager
	registry *providers.Registry
	logger   *slog.Logger
}

func NewChatHandler(config *config.Manager, registry *providers.Registry, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		config:   config,
		registry: registry,
		logger:   logger,
	}
}

type fallbackResponse struct {
	Response  string `json:"response"`
	Model     string `json:"model"`
	Timestamp string `json:"timestamp"`
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req chat.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeInvalidJSON, "request body is not valid JSON")
		return
	}

	// Validating: everything here rejects before any upstream call.
	if err := req.Validate(); err != nil {
		code := CodeMissingMessage
		if errors.Is(err, chat.ErrMissingModel) {
			code = CodeMissingModel
		}

		h.writeError(w, http.StatusBadRequest, code, err.Error())

		return
	}

	info, ok := h.registry.Lookup(req.Model)
	if !ok {
		h.writeError(w, http.StatusBadRequest, CodeUnknownModel, "unknown model: "+req.Model)
		return
	}

	if err := info.Adapter.Ready(); err != nil {
		h.logger.Error("Provider not configured", "model", req.Model, "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeMissingCredential, "provider credential not configured")

		return
	}

	// Dispatching: build the prompt and hand the turn to the adapter.
	cfg := h.config.Get()

	base := cfg.SystemPrompt
	if base == "" {
		base = prompt.DefaultSystemPrompt
	}

	systemPrompt := prompt.BuildSystemPrompt(base, req.ProblemContext())
	if prompt.WantsGraph(req.Message) {
		systemPrompt = prompt.WithGraphInstructions(systemPrompt)
	}

	history := info.Window.Apply(req.ConversationHistory)

	h.logger.Info("Dispatching chat turn",
		"model", req.Model,
		"provider", info.Adapter.Name(),
		"history_turns", len(history),
		"has_image", req.Image != "",
		"input_tokens", h.countTokens(systemPrompt+req.Message),
	)

	ctx := r.Context()

	events, err := info.Adapter.Stream(ctx, providers.Request{
		SystemPrompt: systemPrompt,
		History:      history,
		Message:      req.Message,
		Image:        req.Image,
		Model:        req.Model,
	})
	if err != nil {
		// Construction-time failure: no frame was produced, so the
		// client gets a plain JSON error instead of a stream.
		h.logProviderError(req.Model, err)
		h.writeError(w, http.StatusBadGateway, CodeUpstreamFailure, userFacingError)

		return
	}

	h.streamResponse(w, r, req.Model, events)
}

// streamResponse drives the frame writer until the adapter's sequence
// terminates. A fallback delta arriving before any frame takes the
// non-streamed JSON path instead.
func (h *ChatHandler) streamResponse(w http.ResponseWriter, r *http.Request, model string, events <-chan providers.Event) {
	ctx := r.Context()

	var sw *stream.Writer

	var answer strings.Builder

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Client disconnected mid-stream", "model", model)
			return
		case ev, ok := <-events:
			if !ok {
				// Natural end of the delta sequence.
				if sw == nil {
					sw = stream.NewWriter(w)
				}

				if err := sw.WriteFrame(stream.DoneFrame()); err != nil {
					h.logger.Error("Failed to write done frame", "error", err)
				}

				h.logger.Info("Completed chat turn",
					"model", model,
					"output_tokens", h.countTokens(answer.String()),
				)

				return
			}

			if ev.Err != nil {
				h.logProviderError(model, ev.Err)

				if sw == nil {
					sw = stream.NewWriter(w)
				}

				if err := sw.WriteFrame(stream.ErrorFrame(userFacingError)); err != nil {
					h.logger.Error("Failed to write error frame", "error", err)
				}

				return
			}

			if ev.Fallback && (sw == nil || !sw.Started()) {
				h.writeFallback(w, model, ev.Delta)
				return
			}

			if sw == nil {
				sw = stream.NewWriter(w)
			}

			answer.WriteString(ev.Delta)

			if err := sw.WriteFrame(stream.ContentFrame(ev.Delta)); err != nil {
				h.logger.Error("Failed to write content frame", "error", err)
				return
			}
		}
	}
}

func (h *ChatHandler) writeFallback(w http.ResponseWriter, model, text string) {
	h.logger.Info("Serving blocking fallback response",
		"model", model,
		"output_tokens", h.countTokens(text),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(fallbackResponse{
		Response:  text,
		Model:     model,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		h.logger.Error("Failed to write fallback response", "error", err)
	}
}

func (h *ChatHandler) logProviderError(model string, err error) {
	if perr, ok := providers.AsProviderError(err); ok {
		h.logger.Error("Provider failure",
			"model", model,
			"category", string(perr.Category),
			"message", perr.Message,
		)

		return
	}

	h.logger.Error("Provider failure", "model", model, "error", err)
}

func (h *ChatHandler) countTokens(text string) int {
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		h.logger.Error("Failed to get tiktoken encoding", "error", err)
		return 0
	}

	return len(tke.Encode(text, nil, nil))
}

func (h *ChatHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	}); err != nil {
		h.logger.Error("Failed to write error response", "error", err)
	}
}
