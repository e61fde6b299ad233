package filestream

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/m1k1o/go-preview/internal/utils"
)

// how many leading bytes are inspected to detect the container
const sniffLength = 3072

const defaultContentType = "video/mp4"

type ManagerCtx struct {
	logger zerolog.Logger
	config Config
}

func New(config *Config) *ManagerCtx {
	return &ManagerCtx{
		logger: log.With().Str("module", "filestream").Str("submodule", "manager").Logger(),
		config: config.withDefaultValues(),
	}
}

// ServeHTTP opens the file for every request, so concurrent and
// overlapping requests never share a handle or any other state.
func (m *ManagerCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := m.logger.With().Str("path", m.config.Path).Logger()

	file, err := m.config.Fs.Open(m.config.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("unable to open video")
		http.Error(w, "404 video not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		logger.Warn().Err(err).Msg("video is not a readable file")
		http.Error(w, "404 video not found", http.StatusNotFound)
		return
	}

	size := info.Size()

	contentType, err := m.contentType(file)
	if err != nil {
		logger.Warn().Err(err).Msg("unable to read video")
		http.Error(w, "404 video not found", http.StatusNotFound)
		return
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "no-store")

	status := http.StatusOK
	span := ByteRange{Start: 0, End: size - 1}

	// an empty file has no byte to clamp a range to
	if spec, ok := ParseRange(r.Header.Get("Range")); ok && size > 0 {
		span = Resolve(spec, size)
		status = http.StatusPartialContent
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", span.Start, span.End, size))
	}

	length := span.Length()
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead || length == 0 {
		return
	}

	if _, err := file.Seek(span.Start, io.SeekStart); err != nil {
		logger.Warn().Err(err).Msg("unable to seek video")
		return
	}

	written, err := utils.CopyToHTTP(w, file, length)
	if err != nil {
		// peer closed the connection early, or the file shrank
		logger.Debug().Err(err).
			Int64("written", written).
			Int64("length", length).
			Msg("video response ended early")
	}
}

func (m *ManagerCtx) contentType(file afero.File) (string, error) {
	if m.config.ContentType != "" {
		return m.config.ContentType, nil
	}

	header := make([]byte, sniffLength)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}

	if mtype := mimetype.Detect(header[:n]); strings.HasPrefix(mtype.String(), "video/") {
		return mtype.String(), nil
	}

	if byExt := mime.TypeByExtension(filepath.Ext(m.config.Path)); strings.HasPrefix(byExt, "video/") {
		return byExt, nil
	}

	return defaultContentType, nil
}
