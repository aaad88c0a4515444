package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/memwatch/pkg/environ"
	"github.com/voluzi/memwatch/pkg/monitor"
)

var sparkWidth int

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Prints samples to the terminal until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd, sourceSettings...)
		if err != nil {
			return err
		}

		src, release, err := openSource(cfg)
		if err != nil {
			return err
		}
		defer release()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := monitor.New(src, monitor.WithGracePeriod(cfg.GracePeriod.Duration))
		if err := m.Start(cfg.InitialDelay.Duration, cfg.Period.Duration, newDisplay(os.Stdout, sparkWidth)); err != nil {
			return err
		}

		<-ctx.Done()
		log.Info("received signal, stopping")
		if err := m.Stop(); err != nil {
			log.WithError(err).Warn("monitor did not stop cleanly")
		}
		return nil
	},
}

func init() {
	addSourceFlags(watchCmd.Flags())
	watchCmd.Flags().IntVar(&sparkWidth, "spark-width",
		environ.GetInt("SPARK_WIDTH", 40),
		"Number of allocation rate samples plotted",
	)
}
