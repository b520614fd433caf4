// Package config loads and validates Gray Logic HomeSim configuration.
//
// The same Config type is shared by the coordinator and the simulator
// processes. Values are resolved in three layers:
//   - Built-in defaults (Default)
//   - A YAML file
//   - GRAYLOGIC_* environment variables
//
// Credentials (broker password, InfluxDB token) should be supplied through
// the environment rather than committed to a config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Broker.Host)
package config
