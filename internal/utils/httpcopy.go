package utils

import (
	"errors"
	"io"
	"net/http"
)

// ChunkSize is the largest body write issued by CopyToHTTP.
const ChunkSize = 64 * 1024

// ErrShortRead is returned when the reader ends before limit bytes were copied.
var ErrShortRead = errors.New("source ended before requested length")

// CopyToHTTP copies exactly limit bytes from read to w in chunks of at most
// ChunkSize, flushing after every chunk when w supports it. A negative limit
// copies until EOF. It stops at the first read or write error.
func CopyToHTTP(w io.Writer, read io.Reader, limit int64) (int64, error) {
	buffer := make([]byte, ChunkSize)
	flusher, _ := w.(http.Flusher)

	var written int64
	for limit < 0 || written < limit {
		chunk := buffer
		if limit >= 0 && limit-written < int64(len(chunk)) {
			chunk = chunk[:limit-written]
		}

		n, err := read.Read(chunk)
		if n > 0 {
			m, werr := w.Write(chunk[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if m < n {
				return written, io.ErrShortWrite
			}

			if flusher != nil {
				flusher.Flush()
			}
		}

		if err == io.EOF {
			if limit >= 0 && written < limit {
				return written, ErrShortRead
			}
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
