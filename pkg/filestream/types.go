package filestream

import (
	"net/http"

	"github.com/spf13/afero"
)

// ByteRange is an end-inclusive interval of file bytes, starting at 0.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// RangeSpec is a parsed Range header before it is fitted to a file size.
// End is negative when the header leaves it open.
type RangeSpec struct {
	Start int64
	End   int64
}

type Config struct {
	Fs          afero.Fs // defaults to the OS filesystem
	Path        string   // file served on every request
	ContentType string   // optional: detected from the file when empty
}

func (c Config) withDefaultValues() Config {
	if c.Fs == nil {
		c.Fs = afero.NewOsFs()
	}
	return c
}

type Manager interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}
