// Package providers adapts the two upstream LLM families to one internal
// contract: a lazy, finite, non-restartable sequence of text deltas.
package providers

import (
	"context"
	"sort"
	"strings"

	"github.com/mathtutor/chat-gateway/internal/chat"
	"github.com/mathtutor/chat-gateway/internal/prompt"
)

// Request carries everything an adapter needs for one turn. History is
// already windowed by the caller.
type Request struct {
	SystemPrompt string
	History      []chat.Message
	Message      string
	Image        string // data-URI encoded, optional
	Model        string
}

// Event is one element of an adapter's delta sequence. A non-nil Err is
// terminal and always a classified *Error. Fallback marks a delta produced by
// the blocking retry path; it is only ever set on the first delta.
type Event struct {
	Delta    string
	Err      error
	Fallback bool
}

// Adapter translates one upstream provider's call shape into the delta
// sequence. Stream returns an error only when the call cannot be constructed
// at all (bad request build, transport refusal, upstream rejection before any
// output); once the channel is returned, failures arrive in-band and the
// channel is closed after the terminal event.
type Adapter interface {
	Name() string
	Ready() error
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}

// ModelInfo binds a model identifier to its adapter and the history window
// policy that suits the variant's latency profile.
type ModelInfo struct {
	Adapter Adapter
	Window  prompt.WindowPolicy
}

// Registry is the closed model-to-adapter table. Unknown identifiers are
// rejected before any upstream call is made; the table is not extensible at
// request time.
type Registry struct {
	models map[string]ModelInfo
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]ModelInfo)}
}

func (r *Registry) Register(model string, info ModelInfo) {
	r.models[model] = info
}

func (r *Registry) Lookup(model string) (ModelInfo, bool) {
	info, ok := r.models[model]
	return info, ok
}

// Models returns the known identifiers, sorted for stable output.
func (r *Registry) Models() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// parseDataURI splits a data-URI image into its MIME type and base64 payload.
// Payloads without a recognizable prefix default to a generic image type.
func parseDataURI(uri string) (mimeType, data string) {
	mimeType = "image/png"
	data = uri

	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return mimeType, data
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return mimeType, data
	}

	data = payload

	if mt, _, _ := strings.Cut(meta, ";"); mt != "" {
		mimeType = mt
	}

	return mimeType, data
}
