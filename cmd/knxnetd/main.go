// knxnetd - KNXnet/IP client daemon
//
// knxnetd keeps a tunneling or routing session to a KNX installation open
// and republishes what it sees:
//   - telegrams, connection state and statistics to MQTT
//   - telegrams and statistics to InfluxDB
//   - the last value of every group address to SQLite
//   - a read-only HTTP/WebSocket status surface with Prometheus metrics
//
// Every sink is optional; with none configured knxnetd only logs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/knxnet-core/migrations"

	"github.com/nerrad567/knxnet-core/internal/api"
	"github.com/nerrad567/knxnet-core/internal/infrastructure/config"
	"github.com/nerrad567/knxnet-core/internal/infrastructure/database"
	"github.com/nerrad567/knxnet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/knxnet-core/internal/infrastructure/logging"
	"github.com/nerrad567/knxnet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/knxnet-core/internal/knxnet/client"
	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
	"github.com/nerrad567/knxnet-core/internal/knxnet/status"
	"github.com/nerrad567/knxnet-core/internal/observer"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when neither -config nor KNXNET_CONFIG is set.
	defaultConfigPath = "configs/knxnetd.yaml"

	// shutdownTimeout bounds the tunnel disconnect on exit.
	shutdownTimeout = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command line flags.
type options struct {
	configPath  string
	showVersion bool
	issueToken  string
	tokenTTL    time.Duration
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("knxnetd", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print an API bearer token for `subject` and exit")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the token printed by -issue-token (0 for none)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - args: Command line arguments without the program name
//   - stdout: Destination for -version and -issue-token output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "knxnetd %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.issueToken != "" {
		token, tokenErr := api.IssueToken(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, opts.issueToken, opts.tokenTTL)
		if tokenErr != nil {
			return tokenErr
		}
		fmt.Fprintln(stdout, token)
		return nil
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting knxnetd",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
	)

	clientCfg, err := cfg.KNXNet.ToClientConfig()
	if err != nil {
		return fmt.Errorf("knxnet config: %w", err)
	}

	out, err := openSinks(ctx, cfg, log)
	defer out.close(log)
	if err != nil {
		return err
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(log.Component("api"))
		out.observers = append(out.observers, hub)
	}

	registry := observer.NewRegistry(0, out.observers...)
	registry.SetLogger(log.Component("observer"))

	collector := stats.New()
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	clientOpts := []client.Option{
		client.WithHooks(registry),
		client.WithStats(collector),
		client.WithLogger(log.Component("knxnet")),
	}
	if out.store != nil {
		clientOpts = append(clientOpts, client.WithStatusStore(out.store))
	}
	knx, err := client.New(clientCfg, clientOpts...)
	if err != nil {
		return fmt.Errorf("creating knxnet client: %w", err)
	}

	// The pipeline outlives ctx so the final state changes of Close are
	// still delivered.
	pipeCtx, stopPipe := context.WithCancel(context.Background())
	defer stopPipe()
	g, gctx := errgroup.WithContext(pipeCtx)
	g.Go(func() error { return registry.Run(gctx) })
	if hub != nil {
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
	}

	if err := knx.Start(ctx); err != nil {
		_ = shutdown(log, knx, nil, stopPipe, g) //nolint:errcheck // startup error takes precedence
		return fmt.Errorf("starting knxnet client: %w", err)
	}
	log.Info("knxnet client started", "mode", clientCfg.Mode.String(), "state", knx.State().String())

	if len(out.stats) > 0 && cfg.InfluxDB.StatsInterval > 0 {
		reporter := observer.NewStatsReporter(
			time.Duration(cfg.InfluxDB.StatsInterval)*time.Second,
			knx.Stats, log.Component("stats"), out.stats...)
		g.Go(func() error { return reporter.Run(gctx) })
	}

	var srv *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			Security: cfg.Security,
			Logger:   log,
			Client:   knx,
			Status:   knx.Status(),
			Gatherer: promRegistry,
			Hub:      hub,
			Health:   out.health,
			Version:  version,
		}
		if out.addresses != nil {
			deps.Addresses = out.addresses
		}
		srv, err = api.New(deps)
		if err == nil {
			err = srv.Start(gctx)
		}
		if err != nil {
			_ = shutdown(log, knx, nil, stopPipe, g) //nolint:errcheck // startup error takes precedence
			return fmt.Errorf("starting API server: %w", err)
		}
		g.Go(func() error {
			select {
			case serveErr, ok := <-srv.Err():
				if ok && serveErr != nil {
					return fmt.Errorf("api server: %w", serveErr)
				}
			case <-gctx.Done():
			}
			return nil
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-gctx.Done():
		log.Error("background task failed, shutting down")
	}

	err = shutdown(log, knx, srv, stopPipe, g)
	log.Info("knxnetd stopped")
	return err
}

// shutdown stops the API, disconnects the client and then the pipeline.
func shutdown(log *logging.Logger, knx *client.Client, srv *api.Server, stopPipe context.CancelFunc, g *errgroup.Group) error {
	if srv != nil {
		if err := srv.Close(); err != nil {
			log.Error("error closing API server", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := knx.Close(ctx); err != nil {
		log.Warn("error closing knxnet client", "error", err)
	}

	stopPipe()
	return g.Wait()
}

// sinks holds the optional outputs opened from the configuration.
type sinks struct {
	observers []observer.Observer
	stats     []observer.StatsSink
	health    map[string]api.HealthChecker

	store     status.Store
	addresses *observer.AddressRecorder

	closers []func()
}

// openSinks connects every enabled output. On error the sinks opened so far
// are returned so the caller can close them.
func openSinks(ctx context.Context, cfg *config.Config, log *logging.Logger) (*sinks, error) {
	s := &sinks{health: make(map[string]api.HealthChecker)}
	s.observers = append(s.observers, observer.NewLogObserver(log.Component("bus"), cfg.Logging.Frames))

	if cfg.Database.Enabled {
		db, err := database.Open(database.FromConfig(cfg.Database))
		if err != nil {
			return s, fmt.Errorf("opening database: %w", err)
		}
		s.closers = append(s.closers, func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		})
		if err := db.Migrate(ctx); err != nil {
			return s, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", db.Path())

		s.store = status.NewSQLiteStore(db.DB)
		s.health["database"] = db

		recorder := observer.NewAddressRecorder(db.DB, log.Component("addresses"))
		if err := recorder.Start(); err != nil {
			return s, fmt.Errorf("starting address recorder: %w", err)
		}
		s.closers = append(s.closers, recorder.Stop)
		s.addresses = recorder
		s.observers = append(s.observers, recorder)
	}

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return s, fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		s.closers = append(s.closers, func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		})
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", mqttClient.ClientID(),
		)

		pub := observer.NewMQTTPublisher(mqttClient, mqttClient.Topics(), mqttClient.QoS(), log.Component("mqtt"))
		s.observers = append(s.observers, pub)
		s.stats = append(s.stats, pub)
		s.health["mqtt"] = mqttClient
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return s, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		s.closers = append(s.closers, func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		})
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		rec := observer.NewInfluxRecorder(influxClient)
		s.observers = append(s.observers, rec)
		s.stats = append(s.stats, rec)
		s.health["influxdb"] = influxClient
	}

	return s, nil
}

// close releases the sinks in reverse order of opening.
func (s *sinks) close(log *logging.Logger) {
	if s == nil {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	log.Debug("sinks closed", "count", len(s.closers))
}

// getConfigPath returns the configuration file path.
// Uses KNXNET_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KNXNET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
