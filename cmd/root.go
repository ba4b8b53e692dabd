// Package cmd defines and implements the CLI commands for the mediavid executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/activity"
	"github.com/JakeFAU/mediavid-client/internal/app"
	"github.com/JakeFAU/mediavid-client/internal/config"
	"github.com/JakeFAU/mediavid-client/internal/jobapi"
	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/notify"
	"github.com/JakeFAU/mediavid-client/internal/store"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the services commands use. Tests inject a fake through newApp.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetClient() *jobapi.Client
	GetIDs() media.IDGenerator
	GetBlobStore() media.BlobStore
	GetHistory() store.HistoryRepository
	HistoryPersistent() bool
	GetNotifier() media.Notifier
	GetRecorder() *notify.Recorder
	GetHub() *activity.Hub
}

var _ App = (*app.App)(nil)

// appOptions carries the root flags into the factory.
type appOptions struct {
	ConfigPath string
	EnvFiles   []string
	Out        io.Writer
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, opts appOptions) (App, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.EnvFiles...)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.Options{Out: opts.Out})
}

// session owns the App built for one invocation so it is closed even when a
// command fails and cobra skips the post-run hook.
type session struct {
	opts appOptions
	app  App
}

func (s *session) close() {
	if s.app != nil {
		s.app.Close()
		s.app = nil
	}
}

// newRootCmd creates and configures the root command.
func newRootCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mediavid",
		Short: "Command-line client for the mediavid download backend.",
		Long: `mediavid talks to a mediavid backend: it inspects videos, downloads them
with live progress, and drives the server-side batch queue, saving finished
batch items automatically.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s.opts.Out = cmd.OutOrStdout()
			appInstance, err := newApp(cmd.Context(), s.opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			s.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			s.close()
		},
	}

	cmd.PersistentFlags().StringVar(&s.opts.ConfigPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringSliceVar(&s.opts.EnvFiles, "env-file", nil, "dotenv files loaded before the environment (default .env)")

	cmd.AddCommand(
		newInfoCmd(),
		newFormatsCmd(),
		newDownloadCmd(),
		newHistoryCmd(),
		newBatchCmd(),
	)
	return cmd
}

// run executes the CLI with args and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	s := &session{}
	defer s.close()

	root := newRootCmd(s)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
