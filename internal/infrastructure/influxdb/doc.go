// Package influxdb records HomeSim reading history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. The coordinator
// writes every numeric sensor reading and actuator setpoint it ingests
// as a device_metrics point tagged with device_id, subtype and
// measurement.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history off
//	}
//	defer client.Close()
//
//	client.WriteDeviceMetric("temp_sensor_01", "temperature", "temperature", 26.0, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use. Write errors surface
// asynchronously through SetOnError.
package influxdb
