package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrameLength is the maximum allowed length of a single frame,
	// excluding the terminating newline (64 KB)
	MaxFrameLength = 64 * 1024
)

var (
	ErrFrameTooLong  = errors.New("frame exceeds maximum length (64 KB)")
	ErrEmptyFrame    = errors.New("empty frame")
	ErrEmbeddedDelim = errors.New("payload contains frame delimiter")
)

// FramingError indicates a violated frame boundary. It is fatal to the
// connection it occurred on, never to the server.
type FramingError struct {
	Err error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: %v", e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// LineReader turns a byte stream into a sequence of newline-delimited
// frames, buffering partial reads across calls.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader creates a LineReader on top of r
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		// Buffer one max-size frame plus the delimiter
		r: bufio.NewReaderSize(r, MaxFrameLength+1),
	}
}

// ReadFrame returns the next complete frame, without its trailing
// newline. It blocks until a full frame is available or the stream
// ends. A frame longer than MaxFrameLength or an empty line yields a
// FramingError; io.EOF is returned unchanged on clean close.
func (lr *LineReader) ReadFrame() ([]byte, error) {
	line, err := lr.r.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return nil, &FramingError{Err: ErrFrameTooLong}
		}
		if err == io.EOF && len(line) > 0 {
			// Stream ended mid-frame
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	// Strip the delimiter and an optional carriage return
	line = bytes.TrimSuffix(line, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})

	if len(line) == 0 {
		return nil, &FramingError{Err: ErrEmptyFrame}
	}

	// ReadSlice's buffer is reused on the next call
	frame := make([]byte, len(line))
	copy(frame, line)

	return frame, nil
}

// WriteFrame serializes one frame to the writer. The payload and its
// delimiter go out in a single Write call so concurrent writers on a
// serialized connection never interleave partial frames.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLength {
		return &FramingError{Err: ErrFrameTooLong}
	}
	if bytes.IndexByte(payload, '\n') >= 0 {
		return &FramingError{Err: ErrEmbeddedDelim}
	}

	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, payload...)
	buf = append(buf, '\n')

	_, err := w.Write(buf)
	return err
}
