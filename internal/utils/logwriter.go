package utils

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/rs/zerolog"
)

// LogWriterCtx forwards line oriented output of child processes to a logger.
type LogWriterCtx struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func LogWriter(l zerolog.Logger, level zerolog.Level) *LogWriterCtx {
	return &LogWriterCtx{
		logger: l,
		level:  level,
	}
}

func (l LogWriterCtx) Write(p []byte) (n int, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(p))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l.logger.WithLevel(l.level).Msg(line)
	}
	return len(p), nil
}
