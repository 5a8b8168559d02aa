// Package report fans batch progress out to the outside world.
//
// ResultMessage is the JSON shape of one device outcome, shared by the MQTT
// topics, the WebSocket hub and the REST API. MQTTPublisher and Telemetry
// are transaction.Observer implementations:
//
//   - MQTTPublisher publishes each outcome to graylogic/fleet/{batch}/result/{device}
//     and a retained summary to graylogic/fleet/{batch}/summary.
//   - Telemetry writes one session_outcome point per outcome and one
//     batch_summary point per batch to InfluxDB.
package report
