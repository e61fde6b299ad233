package player

const (
	ModeVideo  = "video"
	ModeStream = "stream"
)

type Config struct {
	Mode   string // ModeVideo or ModeStream
	Source string // URL of the media element
	Title  string
}

func (c Config) withDefaultValues() Config {
	if c.Mode == "" {
		c.Mode = ModeVideo
	}
	if c.Source == "" {
		c.Source = "/" + c.Mode
	}
	if c.Title == "" {
		c.Title = "Preview"
	}
	return c
}
