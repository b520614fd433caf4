// HomeSim coordinator.
//
// The coordinator consumes sensor readings and actuator status from the
// broker, keeps the device registry, runs the automation control loop and
// serves the HTTP API. Sensors and actuators run as separate processes
// (cmd/sensor, cmd/actuator).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-homesim/internal/api"
	"github.com/nerrad567/gray-logic-homesim/internal/audit"
	"github.com/nerrad567/gray-logic-homesim/internal/automation"
	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/dispatch"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/broker"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-homesim/internal/ingest"
	"github.com/nerrad567/gray-logic-homesim/internal/telemetry"
	"github.com/nerrad567/gray-logic-homesim/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

const (
	serviceName       = "coordinator"
	defaultConfigPath = "configs/config.yaml"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the coordinator and blocks until ctx is cancelled or the broker
// session fails for good. A broker that cannot be reached at start-up is
// fatal.
func run(ctx context.Context, args []string) error {
	configPath := os.Getenv("GRAYLOGIC_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	flagSet := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", configPath, "path to the YAML configuration file")
	showVersion := flagSet.Bool("version", false, "print the version and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("%s %s (%s)\n", serviceName, version, commit)
		return nil
	}

	log := logging.Default(serviceName)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("starting HomeSim coordinator", "version", version, "commit", commit, "config", configPath)

	session, err := broker.Connect(ctx, cfg.Broker, broker.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer func() {
		log.Info("closing broker session")
		if closeErr := session.Close(); closeErr != nil {
			log.Error("error closing broker session", "error", closeErr)
		}
	}()

	health := map[string]api.HealthChecker{"broker": session}

	registry := device.NewRegistry()
	registry.SetLogger(log)

	ingestOpts := []ingest.Option{
		ingest.WithLogger(log),
		ingest.WithDefaultEndpoint(cfg.RPC.DefaultHost, cfg.RPC.DefaultPorts),
	}

	// Reading history (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			stats := influxClient.Stats()
			log.Info("closing InfluxDB connection",
				"points_queued", stats.Queued,
				"failed_batches", stats.FailedBatches,
			)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		ingestOpts = append(ingestOpts, ingest.WithHistory(influxClient))
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithTimeout(cfg.RPC.Timeout),
		dispatch.WithLogger(log),
	}

	// Dispatch audit log (optional)
	var auditRepo audit.Repository
	if cfg.Database.Enabled {
		db, dbErr := database.Open(ctx, cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		repo := audit.NewSQLiteRepository(db.DB)
		auditRepo = repo
		dispatchOpts = append(dispatchOpts, dispatch.WithRecorder(repo))
		health["database"] = db
		log.Info("dispatch log enabled", "path", cfg.Database.Path)
	}

	ingestor := ingest.New(registry, ingestOpts...)
	dispatcher := dispatch.New(registry, dispatch.RPCConnector(), dispatchOpts...)

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)
	registry.SetOnChange(func(rec device.Record) {
		hub.Broadcast(api.ChannelDeviceStateChanged, rec)
	})

	consumer, err := telemetry.NewConsumer(session, cfg.Topology.SensorExchange, telemetry.CoordinatorQueues(),
		ingestor.Handle,
		telemetry.WithConsumerLogger(log),
	)
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	shutdown := telemetry.NewPublisher(session, cfg.Topology.ShutdownExchange, log)
	if err := shutdown.Declare(true); err != nil {
		return fmt.Errorf("declaring %s: %w", cfg.Topology.ShutdownExchange, err)
	}

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Registry:   registry,
		Registrar:  ingestor,
		Dispatcher: dispatcher,
		Audit:      auditRepo,
		Shutdown:   shutdown,
		Health:     health,
		Hub:        hub,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Automation.Enabled {
		loop := automation.NewLoop(registry, dispatcher, cfg.Automation,
			automation.WithLogger(log),
			automation.WithBroadcaster(hub),
		)
		loopCtx, stopLoop := context.WithCancel(ctx)
		loopDone := make(chan struct{})
		go func() {
			defer close(loopDone)
			if loopErr := loop.Run(loopCtx); loopErr != nil {
				log.Error("automation loop stopped", "error", loopErr)
			}
		}()
		// Runs before the deferred closes above: a tick in progress still
		// dispatches and writes audit rows.
		defer func() {
			stopLoop()
			<-loopDone
		}()
	} else {
		log.Info("automation disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-consumer.Done():
		if err := consumer.Wait(); err != nil {
			return fmt.Errorf("telemetry consumer: %w", err)
		}
	}

	log.Info("HomeSim coordinator stopped")
	return nil
}
