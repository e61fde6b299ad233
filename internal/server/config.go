package server

import "github.com/spf13/afero"

type Config struct {
	Bind    string
	Static  string
	SSLCert string
	SSLKey  string
	Proxy   bool
	PProf   bool

	// filesystem static files are served from, defaults to the OS
	Fs afero.Fs
}

func (c Config) withDefaultValues() Config {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:17861"
	}
	if c.Fs == nil {
		c.Fs = afero.NewOsFs()
	}
	return c
}
