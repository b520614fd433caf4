// HomeSim actuator simulator.
//
// Serves the gRPC method for one actuator subtype and publishes the
// device's status on command.<subtype>.<id>.
//
//	actuator --id ac_1 --subtype air_conditioner --port 50052 --register http://localhost:8080
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
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

const serviceName = "actuator"

// defaultPorts are the gRPC ports each subtype listens on unless told
// otherwise.
var defaultPorts = map[device.Subtype]int{
	device.SubtypeLamp:           50051,
	device.SubtypeAirConditioner: 50052,
	device.SubtypeDoor:           50053,
	device.SubtypeSprinkler:      50054,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type actuatorFlags struct {
	configPath    string
	brokerHost    string
	id            string
	name          string
	subtype       string
	listenHost    string
	port          int
	advertiseHost string
	interval      time.Duration
	register      string
}

func parseFlags(args []string) (*actuatorFlags, error) {
	f := &actuatorFlags{}
	flagSet := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	flagSet.StringVarP(&f.configPath, "config", "c", os.Getenv("GRAYLOGIC_CONFIG"), "optional YAML configuration file")
	flagSet.StringVar(&f.brokerHost, "broker-host", "", "broker host (overrides config)")
	flagSet.StringVar(&f.id, "id", "", "device id (required)")
	flagSet.StringVar(&f.name, "name", "", "human readable name")
	flagSet.StringVar(&f.subtype, "subtype", string(device.SubtypeLamp), "lamp, air_conditioner, door or sprinkler")
	flagSet.StringVar(&f.listenHost, "listen", "", "gRPC listen host (default all interfaces)")
	flagSet.IntVar(&f.port, "port", 0, "gRPC port (default per subtype)")
	flagSet.StringVar(&f.advertiseHost, "advertise-host", "localhost", "host published as grpc_host")
	flagSet.DurationVar(&f.interval, "interval", simulator.DefaultInterval, "status publish interval")
	flagSet.StringVar(&f.register, "register", "", "coordinator base URL to register with, e.g. http://localhost:8080")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if f.id == "" {
		return nil, errors.New("--id is required")
	}
	if device.Subtype(f.subtype).Kind() != device.KindActuator {
		return nil, fmt.Errorf("--subtype %q is not an actuator subtype", f.subtype)
	}
	if f.port == 0 {
		f.port = defaultPorts[device.Subtype(f.subtype)]
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
	cfg.Broker.ClientID = fmt.Sprintf("homesim-actuator-%s", flags.id)

	log := logging.New(cfg.Logging, serviceName, version).With("device_id", flags.id)

	session, err := broker.Connect(ctx, cfg.Broker, broker.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer session.Close()

	actuator, err := simulator.NewActuator(session, simulator.ActuatorConfig{
		ID:             flags.id,
		Name:           flags.name,
		Subtype:        device.Subtype(flags.subtype),
		AdvertiseHost:  flags.advertiseHost,
		AdvertisePort:  flags.port,
		Interval:       flags.interval,
		Topology:       cfg.Topology,
		CoordinatorURL: flags.register,
	}, simulator.WithLogger(log))
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(flags.listenHost, strconv.Itoa(flags.port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	if err := actuator.Run(ctx, lis); err != nil {
		return fmt.Errorf("actuator %s: %w", flags.id, err)
	}
	log.Info("actuator stopped")
	return nil
}
