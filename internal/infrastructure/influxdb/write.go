package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementDeviceMetrics is the InfluxDB measurement for device readings.
const measurementDeviceMetrics = "device_metrics"

// WriteDeviceMetric records one reading of a device.
//
// The write is non-blocking; data is batched and sent asynchronously.
// A zero timestamp means now.
//
// Example:
//
//	client.WriteDeviceMetric("temp_sensor_01", "temperature", "temperature", 26.0, ts)
//	client.WriteDeviceMetric("lamp_1", "lamp", "brightness", 80, ts)
func (c *Client) WriteDeviceMetric(deviceID, subtype, field string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(deviceMetricPoint(deviceID, subtype, field, value, ts))
	c.queued.Add(1)
}

// deviceMetricPoint builds a device_metrics point.
func deviceMetricPoint(deviceID, subtype, field string, value float64, ts time.Time) *write.Point {
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		measurementDeviceMetrics,
		map[string]string{
			"device_id":   deviceID,
			"subtype":     subtype,
			"measurement": field,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
}
