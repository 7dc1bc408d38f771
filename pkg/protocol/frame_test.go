package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns at most one byte per Read call, forcing the
// reader to reassemble frames from partial reads
type chunkReader struct {
	data []byte
}

func (r *chunkReader) Read(b []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	b[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestReadFrameSingle(t *testing.T) {
	lr := NewLineReader(strings.NewReader("{\"type\":\"register\"}\n"))

	frame, err := lr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"register"}`, string(frame))

	_, err = lr.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameMultiple(t *testing.T) {
	lr := NewLineReader(strings.NewReader("one\ntwo\nthree\n"))

	for _, want := range []string{"one", "two", "three"} {
		frame, err := lr.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, string(frame))
	}

	_, err := lr.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestReadFramePartialReads(t *testing.T) {
	lr := NewLineReader(&chunkReader{data: []byte("hello\nworld\n")})

	frame, err := lr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(frame))

	frame, err = lr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "world", string(frame))
}

func TestReadFrameStripsCarriageReturn(t *testing.T) {
	lr := NewLineReader(strings.NewReader("hello\r\n"))

	frame, err := lr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(frame))
}

func TestReadFrameEmptyLineIsFramingError(t *testing.T) {
	lr := NewLineReader(strings.NewReader("\nnext\n"))

	_, err := lr.ReadFrame()

	var framingErr *FramingError
	require.ErrorAs(t, err, &framingErr)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestReadFrameTooLong(t *testing.T) {
	long := strings.Repeat("x", MaxFrameLength+2) + "\n"
	lr := NewLineReader(strings.NewReader(long))

	_, err := lr.ReadFrame()

	var framingErr *FramingError
	require.ErrorAs(t, err, &framingErr)
	assert.ErrorIs(t, err, ErrFrameTooLong)
}

func TestReadFrameTruncatedStream(t *testing.T) {
	lr := NewLineReader(strings.NewReader("no delimiter"))

	_, err := lr.ReadFrame()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestReadFrameBufferReuse(t *testing.T) {
	lr := NewLineReader(strings.NewReader("first\nsecond\n"))

	first, err := lr.ReadFrame()
	require.NoError(t, err)

	_, err = lr.ReadFrame()
	require.NoError(t, err)

	// The first frame must survive the second read
	assert.Equal(t, "first", string(first))
}

func TestWriteFrameAppendsDelimiter(t *testing.T) {
	var buf bytes.Buffer

	err := WriteFrame(&buf, []byte(`{"type":"system","text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":\"system\",\"text\":\"hi\"}\n", buf.String())
}

func TestWriteFrameSingleWrite(t *testing.T) {
	w := &writeCounter{}

	err := WriteFrame(w, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 1, w.calls, "frame and delimiter must go out in one write")
}

func TestWriteFrameRejectsEmbeddedDelimiter(t *testing.T) {
	var buf bytes.Buffer

	err := WriteFrame(&buf, []byte("two\nlines"))

	var framingErr *FramingError
	require.ErrorAs(t, err, &framingErr)
	assert.ErrorIs(t, err, ErrEmbeddedDelim)
	assert.Zero(t, buf.Len(), "nothing may be written on a framing error")
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer

	err := WriteFrame(&buf, bytes.Repeat([]byte("x"), MaxFrameLength+1))
	assert.ErrorIs(t, err, ErrFrameTooLong)
}

func TestFramingErrorUnwrap(t *testing.T) {
	err := &FramingError{Err: ErrFrameTooLong}

	assert.True(t, errors.Is(err, ErrFrameTooLong))
	assert.Contains(t, err.Error(), "framing error")
}

type writeCounter struct {
	calls int
}

func (w *writeCounter) Write(b []byte) (int, error) {
	w.calls++
	return len(b), nil
}
