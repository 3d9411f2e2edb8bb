package providers

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/mathtutor/chat-gateway/internal/prompt"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiAdapter talks to the natively stream-capable provider family over
// its SSE endpoint.
type GeminiAdapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewGeminiAdapter(apiKey string, logger *slog.Logger) *GeminiAdapter {
	return &GeminiAdapter{
		apiKey:  apiKey,
		baseURL: defaultGeminiBaseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logger,
	}
}

func (p *GeminiAdapter) Name() string {
	return "gemini"
}

func (p *GeminiAdapter) Ready() error {
	if p.apiKey == "" {
		return errors.New("gemini api key not configured")
	}

	return nil
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK,omitempty"`
	CandidateCount  int     `json:"candidateCount"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// Generation parameters are fixed per variant: the flash variant is tuned
// for latency, the pro variant for a higher output ceiling.
var geminiVariants = map[string]geminiGenerationConfig{
	"gemini-2.0-flash": {Temperature: 0.7, TopP: 0.95, TopK: 40, CandidateCount: 1, MaxOutputTokens: 2048},
	"gemini-1.5-pro":   {Temperature: 0.7, TopP: 0.95, CandidateCount: 1, MaxOutputTokens: 8192},
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SafetySettings    []geminiSafetySetting  `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

var geminiSafetySettings = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates,omitempty"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
	Error          *geminiError          `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      *geminiContent `json:"content,omitempty"`
	FinishReason string         `json:"finishReason,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Stream issues the SSE call and returns the delta sequence. Failures before
// the upstream produces output are returned synchronously; later ones arrive
// in-band.
func (p *GeminiAdapter) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := p.Ready(); err != nil {
		return nil, err
	}

	genCfg, ok := geminiVariants[req.Model]
	if !ok {
		return nil, fmt.Errorf("unknown gemini variant: %s", req.Model)
	}

	body, err := json.Marshal(p.buildRequest(req, genCfg))
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse", p.baseURL, req.Model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create gemini request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	httpReq.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, newError(CategoryUpstream, err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, p.errorFromResponse(resp)
	}

	events := make(chan Event, 8)
	go p.consume(ctx, resp, events)

	return events, nil
}

func (p *GeminiAdapter) buildRequest(req Request, genCfg geminiGenerationConfig) geminiRequest {
	var text strings.Builder

	if rendered := prompt.RenderHistory(req.History); rendered != "" {
		text.WriteString("Conversation so far:\n")
		text.WriteString(rendered)
		text.WriteString("\n\n")
	}

	if req.Message != "" {
		text.WriteString("Student: ")
		text.WriteString(req.Message)
	} else {
		text.WriteString("The student sent an image of their work; respond to it.")
	}

	parts := []geminiPart{{Text: text.String()}}

	if req.Image != "" {
		mimeType, data := parseDataURI(req.Image)
		parts = append(parts, geminiPart{InlineData: &geminiBlob{MIMEType: mimeType, Data: data}})
	}

	return geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig:  genCfg,
		SafetySettings:    geminiSafetySettings,
	}
}

func (p *GeminiAdapter) errorFromResponse(resp *http.Response) error {
	reader, err := decompressReader(resp)
	if err != nil {
		return newError(CategoryUpstream, err.Error(), err)
	}

	data, _ := io.ReadAll(io.LimitReader(reader, 1<<16))

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != nil {
		return classifyGemini(parsed.Error.Status, parsed.Error.Message, nil)
	}

	return classifyGemini("", fmt.Sprintf("unexpected status %d from gemini", resp.StatusCode), nil)
}

func (p *GeminiAdapter) consume(ctx context.Context, resp *http.Response, events chan<- Event) {
	defer close(events)
	defer resp.Body.Close()

	reader, err := decompressReader(resp)
	if err != nil {
		events <- Event{Err: newError(CategoryUpstream, err.Error(), err)}
		return
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			events <- Event{Err: newError(CategoryUpstream, "request canceled", ctx.Err())}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			p.logger.Debug("Skipping unparseable gemini chunk", "error", err)
			continue
		}

		if chunk.Error != nil {
			events <- Event{Err: classifyGemini(chunk.Error.Status, chunk.Error.Message, nil)}
			return
		}

		if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
			events <- Event{Err: newError(CategoryPolicy, "prompt blocked: "+chunk.PromptFeedback.BlockReason, nil)}
			return
		}

		if len(chunk.Candidates) == 0 {
			continue
		}

		candidate := chunk.Candidates[0]

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					events <- Event{Delta: part.Text}
				}
			}
		}

		if candidate.FinishReason == "SAFETY" {
			events <- Event{Err: newError(CategoryPolicy, "response blocked by safety filter", nil)}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		events <- Event{Err: classifyGemini("", err.Error(), err)}
	}
}

// decompressReader unwraps the upstream content encoding when we asked for
// compressed transfer.
func decompressReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}

		return gzipReader, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	}

	return resp.Body, nil
}
