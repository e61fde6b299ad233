package serve

import (
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1k1o/go-preview/pkg/broadcaster"
	"github.com/m1k1o/go-preview/pkg/capture"
)

func startMain(t *testing.T, config *Config) *Main {
	t.Helper()

	config.Host = "127.0.0.1"
	config.Port = 0

	main := &Main{Config: config}
	main.Preflight()
	require.NoError(t, main.Start())
	t.Cleanup(main.Shutdown)

	return main
}

func get(t *testing.T, main *Main, path string, header http.Header) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, "http://"+main.Addr()+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestFileMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("0123456789"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("notes"), 0644))

	main := startMain(t, &Config{Video: filepath.Join(dir, "clip.mp4")})

	t.Run("range", func(t *testing.T) {
		resp, body := get(t, main, "/video", http.Header{"Range": {"bytes=2-5"}})
		assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
		assert.Equal(t, "2345", body)
		assert.Equal(t, "bytes 2-5/10", resp.Header.Get("Content-Range"))
	})

	for _, path := range []string{"/video.mp4", "/videos", "/video/clip.mp4", "/video?t=1"} {
		t.Run("prefixed "+path, func(t *testing.T) {
			resp, body := get(t, main, path, http.Header{"Range": {"bytes=2-5"}})
			assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
			assert.Equal(t, "2345", body)
		})
	}

	t.Run("whole file", func(t *testing.T) {
		resp, body := get(t, main, "/video", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "0123456789", body)
		assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	})

	for _, path := range []string{"/", "/index.html"} {
		t.Run("index "+path, func(t *testing.T) {
			resp, body := get(t, main, path, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
			assert.Contains(t, body, `<video id="preview" src="/video"`)
		})
	}

	t.Run("sibling file", func(t *testing.T) {
		resp, body := get(t, main, "/notes.txt", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "notes", body)
	})

	t.Run("missing file", func(t *testing.T) {
		resp, _ := get(t, main, "/missing.txt", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("stream is not served", func(t *testing.T) {
		resp, _ := get(t, main, "/stream", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("ping", func(t *testing.T) {
		_, body := get(t, main, "/ping", nil)
		assert.Equal(t, "pong", body)
	})
}

func TestLiveMode(t *testing.T) {
	frame := []byte("\xff\xd8live\xff\xd9")

	main := startMain(t, &Config{
		Camera: Camera{FPS: 50},
		Source: capture.Func(func() []byte { return frame }),
	})

	require.Eventually(t, func() bool {
		return main.stream.Broadcaster().Stats().Published > 0
	}, 2*time.Second, 10*time.Millisecond)

	t.Run("stream", func(t *testing.T) {
		resp, err := http.Get("http://" + main.Addr() + "/stream")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

		mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/x-mixed-replace", mediaType)
		assert.Equal(t, "frame", params["boundary"])

		part, err := multipart.NewReader(resp.Body, params["boundary"]).NextPart()
		require.NoError(t, err)
		body, err := io.ReadAll(part)
		require.NoError(t, err)
		assert.Equal(t, frame, body)
	})

	t.Run("index", func(t *testing.T) {
		resp, body := get(t, main, "/", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `<img id="camera" src="/stream"`)
	})

	for _, path := range []string{"/stream.mjpg", "/stream/camera"} {
		t.Run("prefixed "+path, func(t *testing.T) {
			resp, err := http.Get("http://" + main.Addr() + path)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusOK, resp.StatusCode)
			part, err := multipart.NewReader(resp.Body, "frame").NextPart()
			require.NoError(t, err)
			body, err := io.ReadAll(part)
			require.NoError(t, err)
			assert.Equal(t, frame, body)
		})
	}

	for _, path := range []string{"/video", "/unknown", "/favicon.ico"} {
		t.Run("not found "+path, func(t *testing.T) {
			resp, _ := get(t, main, path, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}
}

func TestLiveModePlaceholder(t *testing.T) {
	main := startMain(t, &Config{
		Camera: Camera{FPS: 50},
		Source: capture.Func(func() []byte { return nil }),
	})

	resp, err := http.Get("http://" + main.Addr() + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	part, err := multipart.NewReader(resp.Body, "frame").NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part)
	require.NoError(t, err)

	assert.Equal(t, []byte(main.stream.Broadcaster().Latest()), body)
	assert.Equal(t, []byte{0xff, 0xd8}, body[:2])
}

func TestShutdownWithViewer(t *testing.T) {
	main := &Main{Config: &Config{
		Host:   "127.0.0.1",
		Camera: Camera{FPS: 20},
		Source: capture.Func(func() []byte { return []byte("\xff\xd8\xff\xd9") }),
	}}
	main.Preflight()
	require.NoError(t, main.Start())

	resp, err := http.Get("http://" + main.Addr() + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return main.stream.Viewers() == 1 }, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		main.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("shutdown was held by a connected viewer")
	}

	assert.Equal(t, int64(0), main.stream.Viewers())
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{name: "no mode", config: Config{}},
		{name: "both modes", config: Config{Video: "clip.mp4", Camera: Camera{Enabled: true}}},
		{name: "missing camera directory", config: Config{Camera: Camera{Enabled: true, Source: SourceDirectory, Directory: "/does/not/exist"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Host = "127.0.0.1"

			main := &Main{Config: &tt.config}
			main.Preflight()
			assert.Error(t, main.Start())
			assert.Empty(t, main.Addr())
		})
	}
}

type closingSource struct {
	capture.Func
	closed atomic.Int32
}

func (s *closingSource) Close() error {
	s.closed.Add(1)
	return nil
}

func TestStartFailureClosesSource(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	source := &closingSource{Func: func() []byte { return nil }}

	main := &Main{Config: &Config{
		Host:   "127.0.0.1",
		Port:   taken.Addr().(*net.TCPAddr).Port,
		Source: source,
	}}
	main.Preflight()

	require.Error(t, main.Start())
	assert.Equal(t, int32(1), source.closed.Load())
}

func TestCameraCommandConfig(t *testing.T) {
	tests := []struct {
		name     string
		camera   Camera
		wantFPS  float64
		wantRate float64
	}{
		{name: "device rate", camera: Camera{FPS: 24}, wantFPS: 24, wantRate: 24},
		{name: "no rate", camera: Camera{}, wantFPS: 0, wantRate: broadcaster.MinFPS},
		{name: "below floor", camera: Camera{FPS: 0.01}, wantFPS: 0.01, wantRate: broadcaster.MinFPS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := tt.camera.commandConfig()
			assert.Equal(t, tt.wantFPS, config.FPS)
			assert.Equal(t, tt.wantRate, config.Rate)
		})
	}
}

func TestValidate(t *testing.T) {
	source := capture.Func(func() []byte { return nil })

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "video", config: Config{Video: "clip.mp4"}},
		{name: "camera command", config: Config{Camera: Camera{Enabled: true, Source: SourceCommand}}},
		{name: "camera default source", config: Config{Camera: Camera{Enabled: true}}},
		{name: "camera directory", config: Config{Camera: Camera{Enabled: true, Source: SourceDirectory, Directory: "/frames"}}},
		{name: "embedded source", config: Config{Source: source}},
		{name: "neither", config: Config{}, wantErr: true},
		{name: "both", config: Config{Video: "clip.mp4", Camera: Camera{Enabled: true}}, wantErr: true},
		{name: "video and embedded source", config: Config{Video: "clip.mp4", Source: source}, wantErr: true},
		{name: "directory without path", config: Config{Camera: Camera{Enabled: true, Source: SourceDirectory}}, wantErr: true},
		{name: "unknown source", config: Config{Camera: Camera{Enabled: true, Source: "opencv"}}, wantErr: true},
		{name: "port out of range", config: Config{Video: "clip.mp4", Port: 70000}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBind(t *testing.T) {
	assert.Equal(t, "127.0.0.1:17861", (&Config{Host: "127.0.0.1", Port: 17861}).Bind())
	assert.Equal(t, "[::1]:8080", (&Config{Host: "::1", Port: 8080}).Bind())
}
