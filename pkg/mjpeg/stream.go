package mjpeg

import (
	"context"
	"net/http"
	"time"
)

// shortest pause between two parts
const minInterval = time.Millisecond

// LatestFunc returns the frame to show right now. It must not block.
type LatestFunc func() []byte

// Serve writes the stream headers and then one part per interval until ctx
// is done or a write fails. Both are a normal end of the stream: a failed
// write means the viewer went away, and it is returned only for logging.
func Serve(ctx context.Context, w http.ResponseWriter, latest LatestFunc, interval time.Duration) error {
	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	if interval < minInterval {
		interval = minInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if frame := latest(); len(frame) > 0 {
			if err := WritePart(w, frame); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
