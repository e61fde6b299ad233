package capture

import (
	"bufio"
	"errors"
	"io"
)

// MaxFrameSize bounds a single frame read from a stream.
const MaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("jpeg frame exceeds maximum size")

const (
	markerPrefix = 0xff
	markerSOI    = 0xd8
	markerEOI    = 0xd9
)

// FrameReader splits a concatenated JPEG byte stream, as written by
// ffmpeg -f mjpeg, into frames. Bytes outside SOI..EOI are skipped.
// Frames embedding a thumbnail with its own EOI are not supported.
type FrameReader struct {
	r *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r: bufio.NewReaderSize(r, 64*1024),
	}
}

// Next returns the next complete frame, or an error when the stream ends.
func (f *FrameReader) Next() ([]byte, error) {
	if err := f.seekStart(); err != nil {
		return nil, err
	}

	frame := []byte{markerPrefix, markerSOI}
	for {
		chunk, err := f.r.ReadSlice(markerPrefix)
		frame = append(frame, chunk...)
		if len(frame) > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return nil, unexpected(err)
		}

		b, err := f.r.ReadByte()
		if err != nil {
			return nil, unexpected(err)
		}

		switch b {
		case markerEOI:
			return append(frame, b), nil
		case markerPrefix:
			// fill byte, the second 0xff may start the marker
			_ = f.r.UnreadByte()
		default:
			frame = append(frame, b)
		}
	}
}

func (f *FrameReader) seekStart() error {
	for {
		_, err := f.r.ReadSlice(markerPrefix)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return err
		}

		b, err := f.r.ReadByte()
		if err != nil {
			return unexpected(err)
		}

		switch b {
		case markerSOI:
			return nil
		case markerPrefix:
			_ = f.r.UnreadByte()
		}
	}
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
