package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/voluzi/memwatch/internal/config"
	"github.com/voluzi/memwatch/pkg/environ"
	"github.com/voluzi/memwatch/pkg/memserver"
)

var serveSettings = append([]setting{
	{flag: "host", key: "host", env: "HOST"},
	{flag: "port", key: "port", env: "PORT"},
	{flag: "process-name", key: "process_name", env: "PROCESS_NAME"},
	{flag: "mock-mode", key: "mock_mode", env: "MOCK_MODE"},
}, sourceSettings...)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves samples over HTTP, websocket and Prometheus",
	Long: `Serves the retained samples over HTTP. When a config file is given it is watched
and monitoring restarts whenever the effective configuration changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, overrides, err := loadConfig(cmd, serveSettings...)
		if err != nil {
			return err
		}

		sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(sigCtx)
		defer cancel()

		changes := make(chan *config.Config, 1)
		g, gCtx := errgroup.WithContext(ctx)

		if configPath != "" {
			g.Go(func() error {
				return config.Watch(gCtx, configPath, overrides, cfg, func(next *config.Config) {
					// keep only the newest pending config
					select {
					case <-changes:
					default:
					}
					changes <- next
				})
			})
		}

		g.Go(func() error {
			defer cancel()
			return serve(gCtx, cfg, changes)
		})

		return g.Wait()
	},
}

func init() {
	addSourceFlags(serveCmd.Flags())

	defaults := config.Default()
	serveCmd.Flags().String("host",
		environ.GetString("HOST", defaults.Host),
		"The host at which this server will be listening to",
	)
	serveCmd.Flags().Int("port",
		environ.GetInt("PORT", defaults.Port),
		"The port at which this server will be listening to",
	)
	serveCmd.Flags().String("process-name",
		environ.GetString("PROCESS_NAME", defaults.ProcessName),
		"Process reported by /stats/process, this process when empty",
	)
	serveCmd.Flags().Bool("mock-mode",
		environ.GetBool("MOCK_MODE", defaults.MockMode),
		"Enable the /mock endpoints (requires the mock source)",
	)
}

// serve runs the server for cfg and rebuilds it whenever a new config arrives.
// It returns when ctx is cancelled or the server is shut down remotely.
func serve(ctx context.Context, cfg *config.Config, changes <-chan *config.Config) error {
	for {
		src, release, err := openSource(cfg)
		if err != nil {
			return err
		}

		srv, err := memserver.New(src,
			memserver.WithHost(cfg.Host),
			memserver.WithPort(cfg.Port),
			memserver.WithSchedule(cfg.InitialDelay.Duration, cfg.Period.Duration),
			memserver.WithGracePeriod(cfg.GracePeriod.Duration),
			memserver.WithMaxSamples(cfg.MaxSamples),
			memserver.WithEventCapacity(cfg.EventCapacity),
			memserver.WithProcessName(cfg.ProcessName),
			memserver.WithMockMode(cfg.MockMode),
		)
		if err != nil {
			release()
			return err
		}

		done := make(chan error, 1)
		go func() { done <- srv.Start() }()

		select {
		case <-ctx.Done():
			log.Info("stopping server")
			err := errors.Combine(srv.Stop(), <-done)
			release()
			return err

		case err := <-done:
			// shut down through /shutdown, or failed to listen
			_ = srv.Stop()
			release()
			return err

		case next := <-changes:
			log.WithFields(log.Fields{
				"source": next.Source,
				"period": next.Period.Duration,
			}).Info("config changed, restarting monitoring")
			err := errors.Combine(srv.Stop(), <-done)
			release()
			if err != nil {
				return err
			}
			cfg = next
		}
	}
}
