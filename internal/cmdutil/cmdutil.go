// Package cmdutil holds the pieces shared by the command binaries.
package cmdutil

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/clydemeng/mee-fusion/internal/config"
	"github.com/clydemeng/mee-fusion/internal/logging"
)

var (
	// Stdout receives reports; Stderr receives failures.
	Stdout io.Writer = color.Output
	Stderr io.Writer = color.Error

	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen, color.Bold)
)

// NewApp creates a flagless command running action. Logging is configured
// from the environment before the action runs.
func NewApp(name, usage string, action cli.ActionFunc) *cli.App {
	return &cli.App{
		Name:        name,
		Usage:       usage,
		HideVersion: true,
		Writer:      Stdout,
		ErrWriter:   Stderr,
		Before: func(*cli.Context) error {
			cfg := config.Load()
			return logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
		},
		Action: action,
	}
}

// Main runs app and exits non-zero on failure.
func Main(app *cli.App) {
	if err := app.Run(os.Args); err != nil {
		log.Crit("Command failed", "cmd", app.Name, "err", err)
	}
}

// Fail prints err under title followed by numbered hints and returns the
// exit error for the action. Missing configuration adds its own hint.
func Fail(err error, title string, hints ...string) error {
	red.Fprintf(Stderr, "%s: ", title)
	fmt.Fprintln(Stderr, err)

	var missing *config.MissingError
	if errors.As(err, &missing) {
		hints = append([]string{"Set the missing variables in .env or the environment."}, hints...)
	}
	if len(hints) > 0 {
		fmt.Fprintln(Stderr)
		fmt.Fprintln(Stderr, "Troubleshooting:")
		for i, hint := range hints {
			yellow.Fprintf(Stderr, "  %d. %s\n", i+1, hint)
		}
	}
	return cli.Exit("", 1)
}

// Printf writes a plain line to Stdout.
func Printf(format string, args ...interface{}) {
	fmt.Fprintf(Stdout, format+"\n", args...)
}

// Success writes a highlighted success line to Stdout.
func Success(format string, args ...interface{}) {
	green.Fprintf(Stdout, format+"\n", args...)
}

// Warn writes a highlighted warning line to Stdout.
func Warn(format string, args ...interface{}) {
	yellow.Fprintf(Stdout, format+"\n", args...)
}

// Rule writes a horizontal separator.
func Rule() {
	fmt.Fprintln(Stdout, "────────────────────────────────────────────────────────────")
}
