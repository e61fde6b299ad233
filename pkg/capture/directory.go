package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// DirectoryCtx replays the JPEG files of a directory in lexical order,
// one file per Pull, wrapping around at the end. The directory is listed
// again on every Pull, so files may be added or removed while running.
type DirectoryCtx struct {
	logger zerolog.Logger
	fs     afero.Fs
	dir    string

	mu   sync.Mutex
	next int
}

func NewDirectory(fs afero.Fs, dir string) (*DirectoryCtx, error) {
	ok, err := afero.DirExists(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("unable to stat capture directory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("capture directory %q does not exist", dir)
	}

	return &DirectoryCtx{
		logger: log.With().Str("module", "capture").Str("submodule", "directory").Str("dir", dir).Logger(),
		fs:     fs,
		dir:    dir,
	}, nil
}

func (d *DirectoryCtx) Pull(ctx context.Context) ([]byte, error) {
	entries, err := afero.ReadDir(d.fs, d.dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list capture directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.Mode().IsRegular() {
			files = append(files, entry.Name())
		}
	}

	if len(files) == 0 {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := files[d.next%len(files)]
		d.next = (d.next + 1) % len(files)

		data, err := afero.ReadFile(d.fs, filepath.Join(d.dir, name))
		if err != nil {
			d.logger.Debug().Err(err).Str("file", name).Msg("unable to read frame file")
			continue
		}

		if !mimetype.Detect(data).Is("image/jpeg") {
			d.logger.Trace().Str("file", name).Msg("skipping non jpeg file")
			continue
		}

		return data, nil
	}

	return nil, nil
}
