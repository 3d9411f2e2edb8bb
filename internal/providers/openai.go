package providers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mathtutor/chat-gateway/internal/chat"
	"github.com/mathtutor/chat-gateway/internal/config"
)

// OpenAIAdapter wraps the provider family whose streaming mode can be
// unavailable for account reasons. It attempts a streaming call first and,
// on a recognized stream-unavailability rejection, re-issues the identical
// request in blocking mode; the fallback is invisible to the frame contract.
type OpenAIAdapter struct {
	client      *openai.Client
	apiKey      string
	deployments map[string]string
	logger      *slog.Logger
}

// NewOpenAIAdapter builds the adapter with a per-process, read-only client.
// Extra request options are a seam for tests.
func NewOpenAIAdapter(cfg config.OpenAIConfig, logger *slog.Logger, opts ...option.RequestOption) *OpenAIAdapter {
	options := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)

	return &OpenAIAdapter{
		client:      openai.NewClient(options...),
		apiKey:      cfg.APIKey,
		deployments: cfg.Deployments,
		logger:      logger,
	}
}

func (p *OpenAIAdapter) Name() string {
	return "openai"
}

func (p *OpenAIAdapter) Ready() error {
	if p.apiKey == "" {
		return errors.New("openai api key not configured")
	}

	return nil
}

type openaiVariant struct {
	Temperature float64
	MaxTokens   int64
}

// Fixed per variant: the mini deployment biases toward latency, the large
// one toward a higher output ceiling.
var openaiVariants = map[string]openaiVariant{
	"gpt-4o-mini": {Temperature: 0.7, MaxTokens: 1024},
	"gpt-4o":      {Temperature: 0.7, MaxTokens: 4096},
}

// resolveDeployment maps the gateway model identifier to the configured
// backing deployment; without a mapping the identifier is used directly.
func (p *OpenAIAdapter) resolveDeployment(model string) string {
	if deployment, ok := p.deployments[model]; ok && deployment != "" {
		return deployment
	}

	return model
}

func (p *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := p.Ready(); err != nil {
		return nil, err
	}

	variant, ok := openaiVariants[req.Model]
	if !ok {
		return nil, errors.New("unknown openai variant: " + req.Model)
	}

	params := p.buildParams(req, variant)

	events := make(chan Event, 8)
	go p.run(ctx, params, events)

	return events, nil
}

func (p *OpenAIAdapter) buildParams(req Request, variant openaiVariant) openai.ChatCompletionNewParams {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.SystemPrompt),
	}

	for _, msg := range req.History {
		if msg.Role == chat.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(msg.Content))
		} else {
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	if req.Image != "" {
		var parts []openai.ChatCompletionContentPartUnionParam
		if req.Message != "" {
			parts = append(parts, openai.TextPart(req.Message))
		}

		parts = append(parts, openai.ChatCompletionContentPartImageParam{
			ImageURL: openai.F(openai.ChatCompletionContentPartImageImageURLParam{
				URL: openai.String(req.Image),
			}),
			Type: openai.F(openai.ChatCompletionContentPartImageTypeImageURL),
		})

		messages = append(messages, openai.UserMessageParts(parts...))
	} else {
		messages = append(messages, openai.UserMessage(req.Message))
	}

	return openai.ChatCompletionNewParams{
		Messages:    openai.F(messages),
		Model:       openai.F(p.resolveDeployment(req.Model)),
		N:           openai.Int(1),
		Temperature: openai.Float(variant.Temperature),
		MaxTokens:   openai.Int(variant.MaxTokens),
	}
}

func (p *OpenAIAdapter) run(ctx context.Context, params openai.ChatCompletionNewParams, events chan<- Event) {
	defer close(events)

	strm := p.client.Chat.Completions.NewStreaming(ctx, params)

	var streamed bool

	for strm.Next() {
		if ctx.Err() != nil {
			strm.Close()
			events <- Event{Err: newError(CategoryUpstream, "request canceled", ctx.Err())}

			return
		}

		chunk := strm.Current()
		if len(chunk.Choices) == 0 {
			continue
		}

		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			streamed = true
			events <- Event{Delta: delta}
		}
	}

	err := strm.Err()
	strm.Close()

	if err == nil {
		return
	}

	classified := classifyOpenAI(err)

	// Retry once in blocking mode, but only when the rejection is about
	// streaming capability itself and nothing has reached the client yet.
	if !streamed && classified.Category == CategoryStreamUnavailable {
		p.logger.Warn("Streaming unavailable, retrying in blocking mode", "reason", classified.Message)
		p.runBlocking(ctx, params, events)

		return
	}

	events <- Event{Err: classified}
}

func (p *OpenAIAdapter) runBlocking(ctx context.Context, params openai.ChatCompletionNewParams, events chan<- Event) {
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		events <- Event{Err: classifyOpenAI(err)}
		return
	}

	if len(completion.Choices) == 0 {
		events <- Event{Err: newError(CategoryUpstream, "no choices in completion", nil)}
		return
	}

	events <- Event{Delta: completion.Choices[0].Message.Content, Fallback: true}
}
