// Package streamclient consumes the gateway's framed chat responses. It is
// the reader half of the wire format produced by internal/stream: feed it the
// response body and it hands back the assistant's message once the stream
// terminates.
package streamclient

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mathtutor/chat-gateway/internal/chat"
	"github.com/mathtutor/chat-gateway/internal/stream"
)

// ErrTruncated is returned when the byte stream ends without a terminal frame.
var ErrTruncated = errors.New("stream ended without a terminal frame")

// StreamError is returned when the stream terminates with an error frame. The
// text accumulated before the failure is preserved on the error so a caller
// can still show the partial answer.
type StreamError struct {
	Message string
	Partial string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream terminated with error: %s", e.Message)
}

// ContentFunc observes each content delta as it arrives, before it is
// appended to the accumulated answer.
type ContentFunc func(delta string)

type Option func(*Accumulator)

// WithContentFunc registers a callback invoked once per content frame, in
// arrival order.
func WithContentFunc(fn ContentFunc) Option {
	return func(a *Accumulator) { a.onContent = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Accumulator) { a.logger = logger }
}

// Accumulator reads frames from a byte stream and concatenates their content
// in arrival order. The accumulated text is only ever mutated by appending a
// content frame's payload, so the final answer equals the concatenation of
// the deltas the gateway emitted.
type Accumulator struct {
	onContent ContentFunc
	logger    *slog.Logger

	carry   strings.Builder
	answer  strings.Builder
	done    bool
	failure *StreamError
}

func NewAccumulator(opts ...Option) *Accumulator {
	a := &Accumulator{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Read consumes the reader to completion and returns the assistant message.
// Chunk boundaries carry no meaning: the reader may split the stream at any
// byte offset, including inside a frame, and the result is identical.
func (a *Accumulator) Read(r io.Reader) (chat.Message, error) {
	reader := bufio.NewReader(r)

	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			a.carry.WriteString(line)
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				return chat.Message{}, fmt.Errorf("read stream: %w", err)
			}

			break
		}

		if strings.HasSuffix(line, "\n") {
			a.consumeLine(strings.TrimRight(a.carry.String(), "\r\n"))
			a.carry.Reset()
		}

		if a.done || a.failure != nil {
			break
		}
	}

	// A trailing fragment without its newline is still a complete line if
	// the stream ended there.
	if rest := strings.TrimRight(a.carry.String(), "\r\n"); rest != "" && !a.done && a.failure == nil {
		a.consumeLine(rest)
	}

	if a.failure != nil {
		a.failure.Partial = a.answer.String()
		return chat.Message{}, a.failure
	}

	if !a.done {
		return chat.Message{}, ErrTruncated
	}

	return chat.NewMessage(chat.RoleAssistant, a.answer.String()), nil
}

func (a *Accumulator) consumeLine(line string) {
	if line == "" {
		return
	}

	frame, err := stream.Parse(line)
	if err != nil {
		// A malformed line never corrupts the answer.
		a.logger.Debug("Skipping unparseable stream line", "line", line, "error", err)
		return
	}

	switch {
	case frame.Error != "":
		a.failure = &StreamError{Message: frame.Error}
	case frame.Done:
		a.done = true
	case frame.Content != "":
		if a.onContent != nil {
			a.onContent(frame.Content)
		}

		a.answer.WriteString(frame.Content)
	}
}
