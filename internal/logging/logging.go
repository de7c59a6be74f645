package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// levelStep is the distance between adjacent slog levels
const levelStep = 4

// Options controls logger construction
type Options struct {
	Level     string // debug, info, warn or error
	Format    string // text or json
	Verbosity int    // each step lowers the level by one; negative raises it
	Output    io.Writer
}

// ParseLevel converts a configured level name to a slog.Level
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// EffectiveLevel applies verbosity to base. -v from WARN gives INFO, -vv DEBUG,
// -q ERROR. There is no CRITICAL level between ERROR and silence, so -qq
// from WARN already discards everything.
func EffectiveLevel(base slog.Level, verbosity int) slog.Level {
	return base - slog.Level(verbosity*levelStep)
}

// New builds the process logger
func New(opts Options) (*slog.Logger, error) {
	base, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	level := EffectiveLevel(base, opts.Verbosity)

	// Past ERROR nothing is emitted
	if level > slog.LevelError {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	switch opts.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(opts.Output, handlerOpts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(opts.Output, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}
}
