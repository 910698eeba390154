package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/alexanderramin/workgrid/internal/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// App carries what every command needs: configuration loaded from the
// environment and the process streams.
type App struct {
	Config config.Config
	Out    io.Writer
	Err    io.Writer
	// IsTerminal reports whether Err is an interactive terminal.
	IsTerminal func() bool
}

// NewApp wires an App to the real process streams.
func NewApp(cfg config.Config) *App {
	return &App{
		Config: cfg,
		Out:    os.Stdout,
		Err:    os.Stderr,
		IsTerminal: func() bool {
			return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		},
	}
}

// NewRootCmd creates the top-level "workgrid" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "workgrid",
		Short:         "Concurrent workload grid server and client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.Config.LogFormat, "log-format", app.Config.LogFormat, "Log format: auto, text or json")
	flags.Var(&levelFlag{level: &app.Config.LogLevel}, "log-level", "Log level: debug, info, warn or error")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.Config.Validate()
	}

	root.AddCommand(
		newServeCmd(app),
		newProbeCmd(app),
		newWatchCmd(app),
		newEditCmd(app),
	)
	return root
}

// Logger builds the process logger: text on a terminal, JSON otherwise,
// unless the format is set explicitly.
func (a *App) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: a.Config.LogLevel}
	format := a.Config.LogFormat
	if format == config.LogAuto {
		format = config.LogJSON
		if a.IsTerminal != nil && a.IsTerminal() {
			format = config.LogText
		}
	}
	if format == config.LogText {
		return slog.New(slog.NewTextHandler(a.Err, opts))
	}
	return slog.New(slog.NewJSONHandler(a.Err, opts))
}

// levelFlag adapts slog.Level to pflag.Value.
type levelFlag struct {
	level *slog.Level
}

var _ pflag.Value = (*levelFlag)(nil)

func (f *levelFlag) String() string {
	if f.level == nil {
		return slog.LevelInfo.String()
	}
	return f.level.String()
}

func (f *levelFlag) Set(s string) error {
	return f.level.UnmarshalText([]byte(s))
}

func (f *levelFlag) Type() string { return "level" }
