// Package cli implements the civitdl command line. The command tree lives in
// cobra_root.go, collaborator wiring in app.go and the command bodies in
// actions.go.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Exit codes returned by Main.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitCanceled = 130
)

var (
	// errCanceled ends a run interrupted by the user.
	errCanceled = errors.New("download canceled")
	// errFailed signals that at least one item failed; details were already
	// reported.
	errFailed = errors.New("one or more downloads failed")
)

// usageError marks bad invocations so they exit with exitUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// Config holds global flag values shared by all commands.
type Config struct {
	ConfigPath  string
	LogLevel    string
	MetricsFile string
	Token       string

	Stdout io.Writer
	Stderr io.Writer

	// app is built by the root pre-run hook.
	app *app
}

// MainWithArgs runs the CLI with args and returns the process exit code.
func MainWithArgs(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return mainWith(ctx, args, os.Stdout, os.Stderr)
}

// Main returns an exit code for use by cmd/civitdl.
func Main() int { return MainWithArgs(os.Args[1:]) }

func mainWith(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := &Config{Stdout: stdout, Stderr: stderr}
	root := buildRootCmdWith(cfg)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cfg.app != nil {
		if werr := cfg.app.writeMetrics(); werr != nil {
			fmt.Fprintln(stderr, "write metrics:", werr)
		}
	}
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errCanceled) || errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "Download canceled. Partial files were kept and will resume next time.")
		return exitCanceled
	case errors.As(err, &ue):
		fmt.Fprintln(stderr, "Error:", err)
		fmt.Fprintln(stderr, "Run 'civitdl --help' for usage.")
		return exitUsage
	case errors.Is(err, errFailed):
		fmt.Fprintln(stderr, err)
		return exitFailure
	default:
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}
}
