package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/patientsim/internal/config"
	"github.com/ehr/patientsim/internal/platform/channel"
	"github.com/ehr/patientsim/internal/platform/dashboard"
	"github.com/ehr/patientsim/internal/platform/metrics"
	"github.com/ehr/patientsim/internal/platform/middleware"
	"github.com/ehr/patientsim/internal/platform/producer"
	"github.com/ehr/patientsim/internal/platform/websocket"
)

const (
	shutdownTimeout = 10 * time.Second
	requestTimeout  = 10 * time.Second
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	dataDir    string
	logFormat  string
	logLevel   string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:          "patientsim",
		Short:        "Synthetic diabetes telemetry producer and dashboard",
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "config.yaml", "Path to the YAML configuration")
	pf.StringVar(&opts.dataDir, "data-dir", ".", "Directory holding the dataset files")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: json or console (default: console on a terminal, json otherwise)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(generateCmd(opts), produceCmd(opts), dashboardCmd(opts), runCmd(opts))
	return rootCmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func newLogger(w io.Writer, format, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if format == "" {
		format = "json"
		if isTerminal(w) {
			format = "console"
		}
	}
	switch format {
	case "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid --log-format %q: want json or console", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

type channels struct {
	constant *channel.FileChannel
	changing *channel.FileChannel
}

func openChannels(cfg *config.Config, dataDir string) channels {
	return channels{
		constant: channel.NewFileChannel(cfg.ConstantPath(dataDir)),
		changing: channel.NewFileChannel(cfg.ChangingPath(dataDir)),
	}
}

func newProducer(cfg *config.Config, ch channels, seed int64, skipBootstrap bool, m *metrics.Producer, logger zerolog.Logger) *producer.Loop {
	return producer.New(cfg.Profile(), producer.Options{
		UpdatesPerCycle: cfg.DataGeneration.UpdatesPerCycle,
		Interval:        cfg.UpdateInterval(),
		Seed:            seed,
		SkipBootstrap:   skipBootstrap,
		Metrics:         m,
	}, ch.constant, ch.changing, logger)
}

func generateCmd(opts *globalOptions) *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the constant and initial changing datasets, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logFormat, opts.logLevel)
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			ch := openChannels(cfg, opts.dataDir)
			if err := newProducer(cfg, ch, seed, false, nil, logger).Bootstrap(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nwrote %s\n", ch.constant.Path(), ch.changing.Path())
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 picks one from the clock)")
	return cmd
}

func produceCmd(opts *globalOptions) *cobra.Command {
	var (
		seed          int64
		skipBootstrap bool
		metricsAddr   string
	)
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Bootstrap the datasets and keep mutating the changing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logFormat, opts.logLevel)
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				logger.Error().Err(err).Msg("failed to load config")
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			reg := newRegistry()
			loop := newProducer(cfg, openChannels(cfg, opts.dataDir), seed, skipBootstrap, metrics.NewProducer(reg), logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return loop.Run(gctx) })
			if metricsAddr != "" {
				e := newMetricsServer(reg, logger)
				g.Go(func() error { return serve(gctx, e, metricsAddr, logger) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 picks one from the clock)")
	cmd.Flags().BoolVar(&skipBootstrap, "skip-bootstrap", false, "Cycle against the existing changing dataset")
	cmd.Flags().StringVar(&metricsAddr, "metrics-listen", "", "Serve /metrics and /health on this address")
	return cmd
}

// newMetricsServer serves only /health and /metrics for the producer.
func newMetricsServer(reg prometheus.Gatherer, logger zerolog.Logger) *echo.Echo {
	e := newServer(logger)
	metrics.RegisterRoutes(e, reg)
	return e
}

// viewOptions configure the dashboard side of dashboard and run.
type viewOptions struct {
	listen   string
	interval time.Duration
	noRender bool
}

func (v *viewOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&v.listen, "listen", "", "Serve the HTTP view on this address, e.g. :8080")
	cmd.Flags().DurationVar(&v.interval, "interval", 0, "Changing dataset refresh period (default: the configured update interval)")
	cmd.Flags().BoolVar(&v.noRender, "no-render", false, "Do not render the view to the terminal")
}

// view is a dashboard plus its optional HTTP server.
type view struct {
	dash   *dashboard.Dashboard
	server *echo.Echo
	listen string
}

func newView(cfg *config.Config, dataDir string, vo viewOptions, reg *prometheus.Registry, out io.Writer, logger zerolog.Logger) *view {
	v := &view{listen: vo.listen}
	var sinks dashboard.Sinks
	if !vo.noRender {
		sinks = append(sinks, dashboard.NewTextRenderer(out, isTerminal(out)))
	}
	if vo.listen != "" {
		hub := websocket.NewHub(logger)
		store := dashboard.NewStore(hub, logger)
		sinks = append(sinks, store)

		v.server = newServer(logger)
		dashboard.NewHandler(store, reg).RegisterRoutes(v.server)
		websocket.NewHandler(hub, string(dashboard.KindConstant), string(dashboard.KindChanging)).RegisterRoutes(v.server.Group(""))
	}

	interval := vo.interval
	if interval <= 0 {
		interval = cfg.UpdateInterval()
	}
	m := metrics.NewDashboard(reg)
	ch := openChannels(cfg, dataDir)
	v.dash = dashboard.New(logger,
		dashboard.NewConstantPoller(ch.constant, dashboard.ConstantRetryDelay, logger, dashboard.WithSink(sinks), dashboard.WithMetrics(m)),
		dashboard.NewChangingPoller(ch.changing, interval, logger, dashboard.WithSink(sinks), dashboard.WithMetrics(m)),
	)
	return v
}

// start runs the dashboard, and the HTTP view when configured, under g.
func (v *view) start(ctx context.Context, g *errgroup.Group, logger zerolog.Logger) {
	g.Go(func() error { return v.dash.Run(ctx) })
	if v.server != nil {
		g.Go(func() error { return serve(ctx, v.server, v.listen, logger) })
	}
}

func dashboardCmd(opts *globalOptions) *cobra.Command {
	var vo viewOptions
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Poll both datasets and show their statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logFormat, opts.logLevel)
			if err != nil {
				return err
			}
			cfg := config.LoadOrDefault(opts.configPath, logger)

			ctx, stop := signalContext()
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			newView(cfg, opts.dataDir, vo, newRegistry(), cmd.OutOrStdout(), logger).start(gctx, g, logger)
			return g.Wait()
		},
	}
	vo.bind(cmd)
	return cmd
}

func runCmd(opts *globalOptions) *cobra.Command {
	var (
		vo           viewOptions
		seed         int64
		startupDelay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the producer and the dashboard side by side",
		Long: "Run starts the producer, waits for the start-up delay and then starts the dashboard. " +
			"The two share nothing but the dataset files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logFormat, opts.logLevel)
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				logger.Error().Err(err).Msg("failed to load config")
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			reg := newRegistry()
			loop := newProducer(cfg, openChannels(cfg, opts.dataDir), seed, false, metrics.NewProducer(reg), logger)
			v := newView(cfg, opts.dataDir, vo, reg, cmd.OutOrStdout(), logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return loop.Run(gctx) })
			g.Go(func() error {
				if err := sleep(gctx, startupDelay); err != nil {
					return nil
				}
				logger.Info().Dur("delay", startupDelay).Msg("starting dashboard")
				v.start(gctx, g, logger)
				return nil
			})
			return g.Wait()
		},
	}
	vo.bind(cmd)
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 picks one from the clock)")
	cmd.Flags().DurationVar(&startupDelay, "startup-delay", 3*time.Second, "Delay between starting the producer and the dashboard")
	return cmd
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func newServer(logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet},
		AllowHeaders: []string{middleware.RequestIDHeader},
	}))
	return e
}

// serve runs e on addr until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, e *echo.Echo, addr string, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
