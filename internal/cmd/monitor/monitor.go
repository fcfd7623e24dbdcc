package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nicholishen/daikin-one-plus/internal/app"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = cobra.Command{
	Use:   "monitor",
	Short: "Monitor and control Daikin One+ thermostats",
	RunE:  monitor,
}

func monitor(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("daikin monitor starting", "version", cmd.Root().Version)
	defer logger.Info("daikin monitor stopped")

	a, err := app.New(ctx, viper.GetViper(), cmd.Root().Version, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return a.Run(ctx)
}
