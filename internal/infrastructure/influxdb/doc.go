// Package influxdb provides InfluxDB connectivity for Gray Logic Fleet.
//
// It wraps the official influxdb-client-go v2 library and records one point
// per finished device session (session_outcome) and per finished batch
// (batch_summary), so success rates and session durations can be charted per
// device over time.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
//	client.WriteSessionOutcome(influxdb.SessionOutcome{
//	    BatchID: id, DeviceID: "meter-1", Code: "OK", OK: true,
//	})
package influxdb
