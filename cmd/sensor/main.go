// HomeSim sensor simulator.
//
// Publishes a reading on sensor.<subtype> every interval until it is
// interrupted or receives {"command":"shutdown"} on shutdown.<id>.
//
//	sensor --id temp_1 --subtype temperature --related ac_1
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/broker"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-homesim/internal/simulator"
)

var version = "dev"

const serviceName = "sensor"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type sensorFlags struct {
	configPath string
	brokerHost string
	id         string
	name       string
	subtype    string
	related    string
	interval   time.Duration
	seed       uint64
}

func parseFlags(args []string) (*sensorFlags, error) {
	f := &sensorFlags{}
	flagSet := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	flagSet.StringVarP(&f.configPath, "config", "c", os.Getenv("GRAYLOGIC_CONFIG"), "optional YAML configuration file")
	flagSet.StringVar(&f.brokerHost, "broker-host", "", "broker host (overrides config)")
	flagSet.StringVar(&f.id, "id", "", "device id (required)")
	flagSet.StringVar(&f.name, "name", "", "human readable name")
	flagSet.StringVar(&f.subtype, "subtype", string(device.SubtypeTemperature), "temperature, luminosity or presence")
	flagSet.StringVar(&f.related, "related", "", "id of the actuator this sensor drives")
	flagSet.DurationVar(&f.interval, "interval", simulator.DefaultInterval, "publish interval")
	flagSet.Uint64Var(&f.seed, "seed", 0, "random seed (0 picks one from the clock)")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if f.id == "" {
		return nil, errors.New("--id is required")
	}
	if device.Subtype(f.subtype).Kind() != device.KindSensor {
		return nil, fmt.Errorf("--subtype %q is not a sensor subtype", f.subtype)
	}
	return f, nil
}

func run(ctx context.Context, args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadOrDefault(flags.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flags.brokerHost != "" {
		cfg.Broker.Host = flags.brokerHost
	}
	cfg.Broker.ClientID = fmt.Sprintf("homesim-sensor-%s", flags.id)

	log := logging.New(cfg.Logging, serviceName, version).With("device_id", flags.id)

	session, err := broker.Connect(ctx, cfg.Broker, broker.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer session.Close()

	seed := flags.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	sensor, err := simulator.NewSensor(session, simulator.SensorConfig{
		ID:            flags.id,
		Name:          flags.name,
		Subtype:       device.Subtype(flags.subtype),
		RelatedDevice: flags.related,
		Interval:      flags.interval,
		Topology:      cfg.Topology,
	},
		simulator.WithLogger(log),
		simulator.WithSource(simulator.NewRandomSource(seed)),
	)
	if err != nil {
		return err
	}

	if err := sensor.Run(ctx); err != nil {
		return fmt.Errorf("sensor %s: %w", flags.id, err)
	}
	log.Info("sensor stopped")
	return nil
}
