package cli

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// fnIsTerminal reports whether fd is an interactive terminal. Tests replace it.
var fnIsTerminal = func(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// newLogger builds the console logger. Unknown levels fall back to info.
func newLogger(w io.Writer, level string, color bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: !color, TimeFormat: "15:04:05"}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func stdinIsTerminal() bool  { return fnIsTerminal(os.Stdin.Fd()) }
func stderrIsTerminal() bool { return fnIsTerminal(os.Stderr.Fd()) }
