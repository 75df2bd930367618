// File: cmd/root.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package cmd implements the guppictl command tree.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/control"
	"github.com/momentics/guppi-status/core/derive"
	"github.com/momentics/guppi-status/feed"
	"github.com/momentics/guppi-status/internal/config"
	"github.com/momentics/guppi-status/internal/logging"
	"github.com/momentics/guppi-status/internal/tracing"
	"github.com/momentics/guppi-status/registry"
)

var version = "dev"

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) { version = v }

// app is the state shared by one command invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	log     *zap.Logger
	ctl     *control.Control

	closers []func() error
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:   "guppictl",
		Short: "Inspect and update the GUPPI status registry",
		Long: `guppictl stages and commits observation setups to the shared-memory
status registry read by the GUPPI acquisition daemons, and inspects its
current contents.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ~/.config/guppi-status/config.yaml)")
	pf.String("shm", "", "status registry path (default: "+config.Defaults().Shm.Path+")")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.Bool("trace", false, "print OpenTelemetry spans to stderr")
	_ = a.v.BindPFlag("shm.path", pf.Lookup("shm"))
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("tracing.enabled", pf.Lookup("trace"))

	root.AddCommand(
		newSetCmd(a),
		newShowCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newWatchCmd(a),
		newStatusCmd(a),
		newUnlockCmd(a),
		newUnlinkCmd(a),
		newConfigCmd(a),
	)
	closeOnError(root, a)
	return root
}

// closeOnError releases attached resources when a command fails, since
// cobra skips the post-run hooks in that case.
func closeOnError(c *cobra.Command, a *app) {
	if run := c.RunE; run != nil {
		c.RunE = func(cmd *cobra.Command, args []string) error {
			if err := run(cmd, args); err != nil {
				if cerr := a.close(); cerr != nil && a.log != nil {
					a.log.Debug("cleanup after failure", zap.Error(cerr))
				}
				return err
			}
			return nil
		}
	}
	for _, sub := range c.Commands() {
		closeOnError(sub, a)
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.SetDefaults(a.v); err != nil {
		return err
	}
	a.v.SetEnvPrefix("GUPPI")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(filepath.Dir(config.DefaultPath()))
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	a.log = log.Named(logging.CompCLI)
	a.log.Debug("config loaded", zap.String("file", a.v.ConfigFileUsed()), zap.String("shm", cfg.Shm.Path))

	a.ctl = control.New()
	_ = a.ctl.SetConfig(cfg.Map())

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Setup(cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		a.onClose(func() error { return shutdown(context.Background()) })
	}
	return nil
}

func (a *app) onClose(fn func() error) { a.closers = append(a.closers, fn) }

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.log != nil {
		_ = a.log.Sync()
	}
	return errors.Join(errs...)
}

// reloadConfig re-reads the config file into a.cfg and the control store.
func (a *app) reloadConfig() error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return a.ctl.SetConfig(cfg.Map())
}

// openHandle attaches to the registry. Readers adopt the region's
// capacity; writers require the configured one.
func (a *app) openHandle(ctx context.Context, readOnly bool, mutate ...func(*registry.Options)) (*registry.Handle, error) {
	opts := registry.Options{
		Path:          a.cfg.Shm.Path,
		Capacity:      a.cfg.Shm.Capacity,
		ReadOnly:      readOnly,
		ReadTimeout:   a.cfg.Shm.ReadTimeout,
		CommitTimeout: a.cfg.Shm.CommitTimeout,
		Clock:         feed.ClockWithDeadline(feed.SystemClock{}, a.cfg.Feed.Timeout),
		Backend:       a.cfg.Backend,
		Site:          derive.GBT,
		Logger:        a.log,
		Control:       a.ctl,
	}
	if readOnly {
		opts.Capacity = 0
	}
	for _, m := range mutate {
		m(&opts)
	}
	h, err := registry.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.onClose(h.Close)
	return h, nil
}

// openFeed builds the configured telescope feed.
func (a *app) openFeed() (api.TelescopeFeed, error) {
	var next api.TelescopeFeed
	switch a.cfg.Feed.Kind {
	case config.FeedSQLite:
		f, err := feed.OpenSQLFeed(a.cfg.Feed.Path)
		if err != nil {
			return nil, err
		}
		a.onClose(f.Close)
		next = f
	case config.FeedFile:
		f, err := feed.NewFileFeed(a.cfg.Feed.Path, a.log)
		if err != nil {
			return nil, err
		}
		a.onClose(f.Close)
		next = f
	default:
		return nil, api.Wrap(api.ErrCodeFeedUnavailable, "no telescope feed configured (feed.kind)", api.ErrFeedUnavailable)
	}
	next = feed.WithDeadline(next, a.cfg.Feed.Timeout)
	if a.cfg.Feed.TTL > 0 {
		next = feed.NewCachedFeed(next, a.cfg.Feed.TTL, a.log)
	}
	return next, nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch api.CodeOf(err) {
	case api.ErrCodeOK:
		return 0
	case api.ErrCodeWriterBusy:
		return 3
	case api.ErrCodeReadTimeout:
		return 4
	case api.ErrCodeFeedUnavailable:
		return 5
	default:
		return 1
	}
}

// Main runs guppictl and returns the exit status.
func Main() int {
	err := Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "guppictl:", err)
	}
	return exitCode(err)
}
