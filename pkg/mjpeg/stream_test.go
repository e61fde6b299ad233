package mjpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePart(t *testing.T) {
	var buf bytes.Buffer
	frame := []byte{0xff, 0xd8, 0xff, 0xdb, 0x00, 0x43}

	require.NoError(t, WritePart(&buf, frame))

	want := "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 6\r\n\r\n" + string(frame) + "\r\n"
	assert.Equal(t, want, buf.String())
}

func TestServeParts(t *testing.T) {
	frames := [][]byte{[]byte("first"), []byte("second"), []byte("third"), []byte("fourth")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	latest := func() []byte {
		frame := frames[calls%len(frames)]
		calls++
		if calls >= len(frames) {
			cancel()
		}
		return frame
	}

	rec := httptest.NewRecorder()
	err := Serve(ctx, rec, latest, time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)

	mediaType, params, err := mime.ParseMediaType(rec.Header().Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)
	require.Equal(t, Boundary, params["boundary"])

	// the last part is never terminated by a following boundary
	reader := multipart.NewReader(bytes.NewReader(rec.Body.Bytes()), params["boundary"])
	for i := 0; i < len(frames)-1; i++ {
		part, err := reader.NextPart()
		require.NoError(t, err)
		assert.Equal(t, PartType, part.Header.Get("Content-Type"))

		body, err := io.ReadAll(part)
		require.NoError(t, err)
		assert.Equal(t, frames[i], body)
		assert.Equal(t, strconv.Itoa(len(frames[i])), part.Header.Get("Content-Length"))
	}
}

func TestServeSkipsEmptyFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	latest := func() []byte {
		calls++
		if calls >= 3 {
			cancel()
		}
		return nil
	}

	rec := httptest.NewRecorder()
	require.NoError(t, Serve(ctx, rec, latest, time.Millisecond))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

type brokenWriter struct {
	header http.Header
	writes int
	limit  int
}

func (w *brokenWriter) Header() http.Header { return w.header }
func (w *brokenWriter) WriteHeader(int)     {}

func (w *brokenWriter) Write(p []byte) (int, error) {
	if w.writes >= w.limit {
		return 0, errors.New("write: broken pipe")
	}
	w.writes++
	return len(p), nil
}

func TestServeEndsOnWriteError(t *testing.T) {
	w := &brokenWriter{header: http.Header{}, limit: 4}

	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), w, func() []byte { return []byte("jpeg") }, time.Millisecond)
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the writer failed")
	}
}

func TestServeEndsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, &brokenWriter{header: http.Header{}, limit: 1 << 30}, func() []byte { return []byte("jpeg") }, time.Hour)
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the context was cancelled")
	}
}
