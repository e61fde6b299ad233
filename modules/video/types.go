package video

import "github.com/m1k1o/go-preview/pkg/filestream"

type Config struct {
	filestream.Config
}

func (c Config) withDefaultValues() Config {
	return c
}
