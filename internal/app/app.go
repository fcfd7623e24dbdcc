package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/clambin/go-common/slackbot"
	"github.com/nicholishen/daikin-one-plus/internal/bot"
	"github.com/nicholishen/daikin-one-plus/internal/collector"
	"github.com/nicholishen/daikin-one-plus/internal/daikintools"
	"github.com/nicholishen/daikin-one-plus/internal/health"
	"github.com/nicholishen/daikin-one-plus/internal/mqtt"
	"github.com/nicholishen/daikin-one-plus/internal/notifier"
	"github.com/nicholishen/daikin-one-plus/internal/poller"
	"github.com/nicholishen/daikin-one-plus/internal/server"
	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// A Task runs until its context is canceled.
type Task interface {
	Run(ctx context.Context) error
}

type App struct {
	tasks []Task
}

// New discovers the thermostats, performs the first poll and creates all tasks of the monitor.
// It fails if the Daikin API can't be reached, or if the credentials are rejected.
func New(ctx context.Context, cfg *viper.Viper, version string, registry prometheus.Registerer, logger *slog.Logger) (*App, error) {
	client, err := NewClient(cfg, registry, logger)
	if err != nil {
		return nil, err
	}
	devices, err := client.GetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("daikin: %w", err)
	}

	p := poller.New(client, cfg.GetDuration("poller.interval"), logger.With(slog.String("component", "poller")))
	if err = p.Start(ctx); err != nil {
		return nil, fmt.Errorf("daikin: %w", err)
	}
	return &App{tasks: makeTasks(cfg, client, p, devices, version, registry, logger)}, nil
}

// Run runs all tasks until the context is canceled or one of the tasks fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, task := range a.tasks {
		g.Go(func() error { return task.Run(ctx) })
	}
	return g.Wait()
}

// Credentials returns the Daikin credentials from the configuration.
func Credentials(cfg *viper.Viper) daikin.Credentials {
	return daikin.Credentials{
		Email:           cfg.GetString("daikin.email"),
		APIKey:          cfg.GetString("daikin.apiKey"),
		IntegratorToken: cfg.GetString("daikin.integratorToken"),
		LocationName:    cfg.GetString("daikin.locationName"),
	}
}

// NewClient returns a Daikin API client for the configured credentials. If registry is not nil, the client's API calls
// are instrumented.
func NewClient(cfg *viper.Viper, registry prometheus.Registerer, logger *slog.Logger) (*daikin.Client, error) {
	credentials := Credentials(cfg)
	if err := credentials.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}

	options := []daikin.Option{
		daikin.WithLogger(logger.With(slog.String("component", "daikin"))),
	}
	if url := cfg.GetString("daikin.url"); url != "" {
		options = append(options, daikin.WithBaseURL(url))
	}
	if registry != nil {
		metrics := daikintools.NewDaikinCallMetrics("daikin", "api", nil)
		registry.MustRegister(metrics)
		options = append(options, daikin.WithHTTPClient(daikintools.NewInstrumentedHTTPClient(nil, metrics)))
	}
	return daikin.New(credentials, options...), nil
}

func makeTasks(cfg *viper.Viper, client thermostat.Client, p *poller.DaikinPoller, devices []daikin.Device, version string, registry prometheus.Registerer, l *slog.Logger) []Task {
	tasks := []Task{p}

	// Slackbot
	var b *slackbot.SlackBot
	if token := cfg.GetString("slack.token"); token != "" {
		b = slackbot.New(
			token,
			slackbot.WithName("daikinBot "+version),
			slackbot.WithLogger(l.With(slog.String("component", "slackbot"))),
		)
	}

	// Notifiers
	notifiers := notifier.Notifiers{
		notifier.SLogNotifier{Logger: l.With(slog.String("component", "events"))},
	}
	if channel := cfg.GetString("slack.channel"); b != nil && channel != "" {
		notifiers = append(notifiers, notifier.SlackNotifier{
			Bot:     b,
			Channel: channel,
			Logger:  l.With(slog.String("component", "slack")),
		})
	}

	// Controller
	c := thermostat.New(client, p, devices, cfg.GetDuration("poller.cooldown"), notifiers, l.With(slog.String("component", "controller")))
	tasks = append(tasks, c)

	// Collector
	coll := &collector.Collector{Poller: p, Thermostats: c.Thermostats(), Logger: l.With(slog.String("component", "collector"))}
	if registry != nil {
		registry.MustRegister(coll)
	}
	tasks = append(tasks, coll)

	// Prometheus Server
	if addr := cfg.GetString("exporter.addr"); addr != "" {
		tasks = append(tasks, newHTTPServer(addr, metricsHandler(registry), l.With(slog.String("component", "exporter"))))
	}

	// Health & API
	h := health.New(p, l.With(slog.String("component", "health")))
	tasks = append(tasks, h)
	api := server.New(c, h, l.With(slog.String("component", "api")))
	tasks = append(tasks, newHTTPServer(cfg.GetString("api.addr"), api.Handler(), l.With(slog.String("component", "api"))))

	// MQTT
	if broker := cfg.GetString("mqtt.broker"); broker != "" {
		tasks = append(tasks, mqtt.New(mqtt.Config{
			Broker:   broker,
			Username: cfg.GetString("mqtt.username"),
			Password: cfg.GetString("mqtt.password"),
			Prefix:   cfg.GetString("mqtt.prefix"),
		}, c, p, l.With(slog.String("component", "mqtt"))))
	}

	// Slackbot
	if b != nil {
		tasks = append(tasks, b, bot.New(b, c, l.With(slog.String("component", "daikinbot"))))
	}

	return tasks
}

func metricsHandler(registry prometheus.Registerer) http.Handler {
	mux := http.NewServeMux()
	if g, ok := registry.(prometheus.Gatherer); ok {
		mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

var _ Task = httpServer{}

type httpServer struct {
	server *http.Server
	logger *slog.Logger
}

func newHTTPServer(addr string, handler http.Handler, logger *slog.Logger) httpServer {
	return httpServer{server: &http.Server{Addr: addr, Handler: handler}, logger: logger}
}

func (s httpServer) Run(ctx context.Context) error {
	return server.Run(ctx, s.server, s.logger)
}
