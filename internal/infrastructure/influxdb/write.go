package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementConnectivity = "realtime_connectivity"
	MeasurementAuthEvents   = "auth_events"
)

// WriteConnectivity records a realtime channel state transition.
//
// Parameters:
//   - state: New connection state ("disconnected", "connecting", "connected")
//   - attempt: Reconnect attempt number, 0 for the first connection
func (c *Client) WriteConnectivity(state string, attempt int) {
	c.write(MeasurementConnectivity,
		map[string]string{"state": state},
		map[string]any{"attempt": attempt},
	)
}

// WriteAuthEvent records the outcome of a session operation such as login or
// bootstrap. It never includes the user or the token.
func (c *Client) WriteAuthEvent(operation string, success bool) {
	value := 0
	if success {
		value = 1
	}
	c.write(MeasurementAuthEvents,
		map[string]string{
			"operation": operation,
			"success":   boolTag(success),
		},
		map[string]any{"count": 1, "success": value},
	)
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any) {
	if c == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
