// Package stream implements the gateway's wire protocol: newline-delimited
// frames of the form `data: <json>`, where the payload is one of
// {"content": string}, {"done": true}, or {"error": string}.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Prefix marks a frame line on the wire.
const Prefix = "data: "

var ErrUnknownFrame = errors.New("line does not parse as a known frame shape")

// Frame is one self-contained unit of the wire protocol. Exactly one of the
// three fields is set.
type Frame struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ContentFrame(text string) Frame { return Frame{Content: text} }
func DoneFrame() Frame               { return Frame{Done: true} }
func ErrorFrame(message string) Frame {
	return Frame{Error: message}
}

// Terminal reports whether the frame ends a well-formed stream.
func (f Frame) Terminal() bool {
	return f.Done || f.Error != ""
}

// Encode renders the frame as a wire line, including the trailing blank line
// that separates frames.
func (f Frame) Encode() ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}

	return []byte(Prefix + string(payload) + "\n\n"), nil
}

// Parse decodes a single line (without trailing newlines) back into a frame.
// Lines without the prefix, or whose payload carries none of the known
// fields, fail with ErrUnknownFrame.
func Parse(line string) (Frame, error) {
	payload, ok := strings.CutPrefix(line, Prefix)
	if !ok {
		return Frame{}, ErrUnknownFrame
	}

	var f Frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %s", ErrUnknownFrame, err)
	}

	if f.Content == "" && !f.Done && f.Error == "" {
		return Frame{}, ErrUnknownFrame
	}

	return f, nil
}
