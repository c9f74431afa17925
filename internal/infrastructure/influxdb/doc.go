// Package influxdb writes expo client telemetry to InfluxDB v2.
//
// Two measurements are recorded:
//   - realtime_connectivity, tagged by state, on every realtime channel transition
//   - auth_events, tagged by operation and success, for each session operation
//
// Writes are non-blocking and batched (batch_size, flush_interval). Async write
// failures go to the SetOnError callback. Methods on a nil *Client are no-ops,
// so callers can hold a nil client when telemetry is disabled.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent("login", true)
package influxdb
