package main

import (
	"context"
	"fmt"
	"io"

	"github.com/marmos91/dtool-irods/internal/logger"
	"github.com/marmos91/dtool-irods/pkg/broker"
	"github.com/marmos91/dtool-irods/pkg/cache"
	"github.com/marmos91/dtool-irods/pkg/config"
	"github.com/marmos91/dtool-irods/pkg/remote"
	"github.com/spf13/cobra"
)

// app holds what every subcommand shares once the configuration is loaded.
type app struct {
	configPath      string
	logLevel        string
	metricsTextfile string

	cfg     *config.Config
	metrics *config.MetricsResult
	remote  remote.Remote
	cache   *cache.Cache
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "dtool-irods",
		Short:         "Inspect and create dtool datasets stored in iRODS",
		SilenceUsage:  true,
		SilenceErrors: false,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/dtool-irods/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "override logging.level (DEBUG, INFO, WARN, ERROR)")
	flags.StringVar(&a.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file when done")

	root.AddCommand(
		newLsCmd(a),
		newShowCmd(a),
		newItemsCmd(a),
		newPropsCmd(a),
		newFetchCmd(a),
		newCreateCmd(a),
		newCacheCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads the configuration and creates the remote and the cache.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	// CLI flags take precedence over file and environment.
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.metricsTextfile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = a.metricsTextfile
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return err
	}

	a.cfg = cfg
	a.metrics = config.InitializeMetrics(cfg)

	a.remote, err = config.CreateRemote(cmd.Context(), &cfg.Remote, a.metrics.Remote)
	if err != nil {
		return err
	}
	a.cache, err = config.CreateCache(&cfg.Cache, a.metrics.Cache)
	if err != nil {
		a.closeRemote()
		return err
	}

	logger.Debug("Using %s remote, cache at %s", cfg.Remote.Type, a.cache.Root())
	return nil
}

// teardown closes the remote and writes metrics.
func (a *app) teardown() error {
	a.closeRemote()
	if a.metrics != nil {
		return a.metrics.Flush()
	}
	return nil
}

func (a *app) closeRemote() {
	if c, ok := a.remote.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close remote: %v", err)
		}
	}
	a.remote = nil
}

// broker opens the dataset at uri.
func (a *app) broker(uri string) (*broker.Broker, error) {
	return broker.New(uri, a.remote, broker.WithCache(a.cache))
}

// openDataset opens the dataset at uri and checks that it is one.
func (a *app) openDataset(ctx context.Context, uri string) (*broker.Broker, error) {
	b, err := a.broker(uri)
	if err != nil {
		return nil, err
	}
	ok, err := b.HasAdminMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s is not a dataset", b.URI())
	}
	return b, nil
}

// remoteCommand wraps the RunE of cmd with setup and teardown. Teardown
// runs whether or not the command fails, so the remote is always closed.
func (a *app) remoteCommand(cmd *cobra.Command) *cobra.Command {
	run := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		if err := a.setup(cmd); err != nil {
			return err
		}
		defer func() {
			if terr := a.teardown(); err == nil {
				err = terr
			}
		}()
		return run(cmd, args)
	}
	return cmd
}
