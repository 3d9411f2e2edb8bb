package stream

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_EncodeParseRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		frame Frame
	}{
		{"content", ContentFrame("the derivative is ")},
		{"content with newline", ContentFrame("line one\nline two")},
		{"content with quotes", ContentFrame(`solve "x" = 2`)},
		{"done", DoneFrame()},
		{"error", ErrorFrame("upstream failure")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := tc.frame.Encode()
			require.NoError(t, err)

			line := strings.TrimRight(string(encoded), "\n")
			parsed, err := Parse(line)
			require.NoError(t, err)
			assert.Equal(t, tc.frame, parsed)
		})
	}
}

func TestFrame_EncodeIsSingleLine(t *testing.T) {
	encoded, err := ContentFrame("a\nb").Encode()
	require.NoError(t, err)

	body := strings.TrimSuffix(string(encoded), "\n\n")
	assert.NotContains(t, body, "\n", "JSON escaping keeps each frame on one line")
	assert.True(t, strings.HasPrefix(string(encoded), Prefix))
}

func TestParse_Malformed(t *testing.T) {
	for _, line := range []string{
		"",
		"not a frame",
		"data: ",
		"data: {broken",
		`data: {"unrelated": 1}`,
		`{"content": "missing prefix"}`,
	} {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrUnknownFrame, "line %q", line)
	}
}

func TestWriter_OrderAndSingleTerminal(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)

	require.NoError(t, sw.WriteFrame(ContentFrame("a")))
	require.NoError(t, sw.WriteFrame(ContentFrame("")), "empty deltas are dropped, not errors")
	require.NoError(t, sw.WriteFrame(ContentFrame("b")))
	require.NoError(t, sw.WriteFrame(DoneFrame()))

	assert.ErrorIs(t, sw.WriteFrame(ContentFrame("late")), ErrTerminated)
	assert.ErrorIs(t, sw.WriteFrame(DoneFrame()), ErrTerminated)

	body := rec.Body.String()
	lines := []string{}
	for _, l := range strings.Split(body, "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}

	require.Len(t, lines, 3)
	assert.Equal(t, `data: {"content":"a"}`, lines[0])
	assert.Equal(t, `data: {"content":"b"}`, lines[1])
	assert.Equal(t, `data: {"done":true}`, lines[2])

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestWriter_ErrorIsTerminal(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)

	require.NoError(t, sw.WriteFrame(ContentFrame("partial ")))
	require.NoError(t, sw.WriteFrame(ErrorFrame("something went wrong")))
	assert.True(t, sw.Terminated())
	assert.ErrorIs(t, sw.WriteFrame(ContentFrame("more")), ErrTerminated)

	assert.Contains(t, rec.Body.String(), `data: {"error":"something went wrong"}`)
}

func TestWriter_Started(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)

	assert.False(t, sw.Started())
	require.NoError(t, sw.WriteFrame(ContentFrame("")))
	assert.False(t, sw.Started(), "dropped frames do not start the stream")
	require.NoError(t, sw.WriteFrame(ContentFrame("x")))
	assert.True(t, sw.Started())
}
