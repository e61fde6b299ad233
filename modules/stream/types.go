package stream

import "github.com/m1k1o/go-preview/pkg/broadcaster"

type Config struct {
	broadcaster.Config

	Source broadcaster.Source
}

func (c Config) withDefaultValues() Config {
	return c
}
