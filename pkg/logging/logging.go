// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Settings struct {
	Level      string
	Format     string
	File       string
	WithCaller bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitLogger replaces log.Logger according to s. Logs go to s.File when
// set (rotated by lumberjack) and to stderr otherwise. The returned closer
// flushes the log file.
func InitLogger(s Settings) (io.Closer, error) {
	level := zerolog.InfoLevel
	if s.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s.Level))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", s.Level)
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	isTTY := isatty.IsTerminal(os.Stderr.Fd())
	if s.File != "" {
		if err := os.MkdirAll(filepath.Dir(s.File), 0o755); err != nil {
			return nil, errors.Wrap(err, "create log directory")
		}
		lj := &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		out = lj
		closer = lj
		isTTY = false
	}

	logger, err := newLogger(out, s.Format, isTTY)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	if s.WithCaller {
		logger = logger.With().Caller().Logger()
	}
	log.Logger = logger
	return closer, nil
}

func newLogger(out io.Writer, format string, color bool) (zerolog.Logger, error) {
	switch strings.ToLower(format) {
	case "", "text":
		w := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: !color}
		return zerolog.New(w).With().Timestamp().Logger(), nil
	case "json":
		return zerolog.New(out).With().Timestamp().Logger(), nil
	default:
		return zerolog.Logger{}, errors.Errorf("invalid log format %q", format)
	}
}
