package msgindex

import "log/slog"

// Config configures an Index. The zero value is valid: Validate fills every
// field with a usable default.
type Config struct {
	// Logger receives a debug event for each indexed message. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}
