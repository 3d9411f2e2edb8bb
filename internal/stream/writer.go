package stream

import (
	"errors"
	"io"
	"net/http"
)

var ErrTerminated = errors.New("stream already terminated")

// Writer encodes frames onto an HTTP response body. It drops empty content
// frames, flushes after every write so the client renders incrementally, and
// refuses any frame after the terminal one.
type Writer struct {
	w          io.Writer
	flusher    http.Flusher
	terminated bool
	wroteAny   bool
}

// NewWriter wraps a response writer and sets the headers that keep
// intermediaries from buffering the stream. Headers are only usable if
// nothing has been written to w yet.
func NewWriter(w http.ResponseWriter) *Writer {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)

	return &Writer{w: w, flusher: flusher}
}

// WriteFrame writes one frame. Empty content frames are dropped silently;
// they carry no information.
func (sw *Writer) WriteFrame(f Frame) error {
	if sw.terminated {
		return ErrTerminated
	}

	if !f.Terminal() && f.Content == "" {
		return nil
	}

	line, err := f.Encode()
	if err != nil {
		return err
	}

	if _, err := sw.w.Write(line); err != nil {
		return err
	}

	sw.wroteAny = true

	if f.Terminal() {
		sw.terminated = true
	}

	if sw.flusher != nil {
		sw.flusher.Flush()
	}

	return nil
}

// Started reports whether any frame has reached the wire. Once true, errors
// can only be delivered in-stream.
func (sw *Writer) Started() bool {
	return sw.wroteAny
}

// Terminated reports whether the terminal frame has been written.
func (sw *Writer) Terminated() bool {
	return sw.terminated
}
