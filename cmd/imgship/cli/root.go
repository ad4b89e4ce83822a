// Package cli implements the imgship command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/imgship"
	"github.com/meigma/imgship/cmd/imgship/cli/config"
	"github.com/meigma/imgship/core"
	"github.com/meigma/imgship/internal/engine"
)

const longHelp = `Imgship copies a container image from the local engine to a remote engine
reachable over ssh. It asks the remote engine which layers it already holds,
cuts those layers out of the exported image archive and streams the rest into
the remote "docker load".

Settings may also come from $XDG_CONFIG_HOME/imgship/config.yaml and from
IMGSHIP_* environment variables (for example IMGSHIP_SSHCMD). Flags win.`

// errHelp marks a run that only printed usage.
var errHelp = errors.New("help requested")

// command holds the state of one invocation.
type command struct {
	stdout io.Writer
	stderr io.Writer

	configFile string
	verbose    bool
	debug      bool
	dryRun     bool

	helpShown bool
}

// newRootCmd builds the root command writing to stdout and stderr.
func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *command) {
	c := &command{stdout: stdout, stderr: stderr}
	def := config.Default()

	cmd := &cobra.Command{
		Use:           "imgship [options] [user@]host image",
		Short:         "Copy a container image to a remote engine, skipping layers it already has",
		Long:          longHelp,
		Args:          validateArgs,
		RunE:          c.run,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.String("sshcmd", def.SSHCommand, "remote shell command, may include arguments")
	flags.StringArray("ssharg", nil, "extra argument for the remote shell (repeatable)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "report each layer decision and the archive sizes")
	flags.String("docker", def.Docker, "container engine client on both hosts")
	flags.String("compress", def.Compression, "transfer stream compression: none, gzip or zstd")
	flags.String("match", def.Match, "layer matching: diffid or chain")
	flags.String("progress", def.Progress, "progress output: auto, tty or plain")
	flags.Bool("parallel", def.Parallel, "collect the remote inventory while exporting")
	flags.Duration("timeout", def.Timeout, "abort the transfer after this long (0 means never)")
	flags.BoolVar(&c.dryRun, "dry-run", false, "plan and rewrite, but do not load remotely")
	flags.StringVar(&c.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/imgship/config.yaml)")
	flags.BoolVar(&c.debug, "debug", false, "enable debug logging")
	flags.BoolP("help", "h", false, "print usage and exit")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("%v", err)
	})
	cmd.SetHelpFunc(func(cc *cobra.Command, _ []string) {
		c.helpShown = true
		fmt.Fprintln(stderr, cc.Long)
		fmt.Fprintln(stderr)
		fmt.Fprint(stderr, cc.UsageString())
	})

	return cmd, c
}

// Execute runs the root command.
func Execute() error {
	ctx, cancel := signalContext()
	defer cancel()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// run executes one invocation. Usage is printed to stderr for -h and for
// usage errors; both return a non-nil error.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd, c := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil && c.helpShown {
		return errHelp
	}
	if err != nil {
		fmt.Fprintln(stderr, formatError(err))
		if errors.Is(err, imgship.ErrUsage) {
			fmt.Fprint(stderr, cmd.UsageString())
		}
	}
	return err
}

// validateArgs requires exactly a host and an image reference.
func validateArgs(_ *cobra.Command, args []string) error {
	switch {
	case len(args) == 0:
		return usageError("missing destination host")
	case len(args) == 1:
		return usageError("missing image reference")
	case len(args) > 2:
		return usageError("too many arguments")
	case args[0] == "":
		return usageError("empty destination host")
	case args[1] == "":
		return usageError("empty image reference")
	}
	return nil
}

func (c *command) run(cmd *cobra.Command, args []string) error {
	host, ref := args[0], args[1]

	cfg, err := config.Load(viper.New(), cmd.Flags(), c.configFile)
	if err != nil {
		return err
	}

	logger := slog.New(slog.DiscardHandler)
	if c.debug {
		logger = slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	pipeline, finish, err := c.newPipeline(cfg, host, logger)
	if err != nil {
		return err
	}
	defer finish()

	logger.Debug("starting transfer", "ref", ref, "host", host)
	result, err := pipeline.Run(cmd.Context(), ref)
	if err != nil {
		return err
	}
	if c.dryRun {
		fmt.Fprintf(c.stderr, "dry run: %d of %d layers would be sent\n",
			len(result.Plan.Layers)-result.Plan.Skipped(), len(result.Plan.Layers))
	}
	return nil
}

// newPipeline wires the local and remote engines from cfg.
func (c *command) newPipeline(cfg *config.Config, host string, logger *slog.Logger) (*imgship.Pipeline, func(), error) {
	compression, err := core.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, nil, usageError("%v", err)
	}
	match, err := core.ParseMatchMode(cfg.Match)
	if err != nil {
		return nil, nil, usageError("%v", err)
	}
	switch cfg.Progress {
	case progressAuto, progressTTY, progressPlain:
	default:
		return nil, nil, usageError("unknown progress mode %q (want auto, tty or plain)", cfg.Progress)
	}
	if cfg.Timeout < 0 {
		return nil, nil, usageError("negative timeout %s", cfg.Timeout)
	}

	sshRunner, err := engine.NewSSHRunner(cfg.SSHCommand, cfg.SSHArgs, host)
	if err != nil {
		return nil, nil, usageError("%v", err)
	}
	localRunner := &engine.LocalRunner{}
	if c.debug {
		sshRunner.Stderr = c.stderr
		localRunner.Stderr = c.stderr
	}

	engineOpts := []engine.Option{engine.WithBinary(cfg.Docker), engine.WithLogger(logger)}
	local := engine.New(localRunner, engineOpts...)
	remote := engine.New(sshRunner, engineOpts...)

	progress, finish := newTransferProgress(cfg.Progress, c.stderr)
	opts := []imgship.Option{
		imgship.WithLogger(logger),
		imgship.WithCompression(compression),
		imgship.WithMatchMode(match),
		imgship.WithParallel(cfg.Parallel),
		imgship.WithTimeout(cfg.Timeout),
		imgship.WithDryRun(c.dryRun),
		imgship.WithProgress(progress),
	}
	if c.verbose {
		opts = append(opts, imgship.WithReport(c.stdout))
	}

	pipeline, err := imgship.NewPipeline(local, remote, opts...)
	if err != nil {
		return nil, nil, err
	}
	return pipeline, finish, nil
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{imgship.ErrUsage}, args...)...)
}

// formatError converts imgship errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, imgship.ErrUsage):
		return "Error: " + strings.TrimPrefix(err.Error(), imgship.ErrUsage.Error()+": ")
	case errors.Is(err, imgship.ErrImageNotFound):
		return fmt.Sprintf("Error: image not found locally: %v", err)
	case errors.Is(err, imgship.ErrNoConfig):
		return "Error: image manifest does not name a config blob"
	case errors.Is(err, imgship.ErrLayerCountMismatch):
		return fmt.Sprintf("Error: image manifest and config disagree: %v", err)
	case errors.Is(err, imgship.ErrInvalidArchive):
		return fmt.Sprintf("Error: invalid or corrupt image archive: %v", err)
	case errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Error: timed out"
	case errors.Is(err, imgship.ErrInventory):
		return fmt.Sprintf("Error: could not list layers on the remote host: %v", err)
	case errors.Is(err, imgship.ErrExport):
		return fmt.Sprintf("Error: local export failed: %v", err)
	case errors.Is(err, imgship.ErrLoad):
		return fmt.Sprintf("Error: remote load failed: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
