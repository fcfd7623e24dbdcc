package cmd

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/clambin/go-common/charmer"
	"github.com/nicholishen/daikin-one-plus/internal/cmd/check"
	"github.com/nicholishen/daikin-one-plus/internal/cmd/devices"
	"github.com/nicholishen/daikin-one-plus/internal/cmd/monitor"
	"github.com/nicholishen/daikin-one-plus/internal/mqtt"
	"github.com/nicholishen/daikin-one-plus/internal/poller"
	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "daikin",
		Short: "Utility for Daikin One+ thermostats",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(NewLogger(cmd, viper.GetBool("debug")))
		},
	}
)

var args = charmer.Arguments{
	"debug":                  {Default: false, Help: "Log debug messages"},
	"daikin.email":           {Default: "", Help: "Daikin account email address"},
	"daikin.apiKey":          {Default: "", Help: "Daikin integrator API key"},
	"daikin.integratorToken": {Default: "", Help: "Daikin integrator token"},
	"daikin.locationName":    {Default: "", Help: "Only use the devices at this location"},
	"daikin.url":             {Default: daikin.BaseURL, Help: "Daikin integrator API URL"},
	"poller.interval":        {Default: poller.DefaultInterval, Help: "Poller interval"},
	"poller.cooldown":        {Default: thermostat.DefaultCooldown, Help: "Delay before refreshing a thermostat after a change"},
	"exporter.addr":          {Default: ":9090", Help: "Address of Prometheus exporter"},
	"api.addr":               {Default: ":8080", Help: "Address of the REST API & /health endpoint"},
	"slack.token":            {Default: "", Help: "Slack token"},
	"slack.channel":          {Default: "", Help: "Slack channel for thermostat events"},
	"mqtt.broker":            {Default: "", Help: "MQTT broker (e.g. tcp://localhost:1883)"},
	"mqtt.username":          {Default: "", Help: "MQTT username"},
	"mqtt.password":          {Default: "", Help: "MQTT password"},
	"mqtt.prefix":            {Default: mqtt.DefaultPrefix, Help: "MQTT topic prefix"},
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	_ = charmer.SetPersistentFlags(&RootCmd, viper.GetViper(), args)
	RootCmd.AddCommand(&monitor.Cmd, &devices.Cmd, &check.Cmd)
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/daikin/")
		viper.AddConfigPath("$HOME/.daikin")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("DAIKIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFilename != "" || !errors.As(err, &notFound) {
			slog.Error("failed to read config file", "err", err)
			os.Exit(1)
		}
	}
}

// NewLogger returns a JSON logger, writing to the command's error output.
func NewLogger(cmd *cobra.Command, debug bool) *slog.Logger {
	opts := slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
		// durations are easier to read as strings
		if a.Value.Kind() == slog.KindDuration {
			return slog.String(a.Key, a.Value.Duration().String())
		}
		return a
	}
	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &opts))
}
