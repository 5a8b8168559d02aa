// Package link connects the transaction server to field devices through
// protocol gateways reached over MQTT.
//
// A gateway process (one per protocol, e.g. dlms) owns the physical links.
// The fleet service talks to it with correlated request/response messages:
//
//	graylogic/request/{protocol}/{request_id}   fleet -> gateway
//	graylogic/response/{protocol}/{request_id}  gateway -> fleet
//
// Gateway multiplexes every in-flight request over one subscription per
// protocol. Client is the per-device view of a Gateway and implements
// transaction.Client. Inventory builds clients from the configured device
// list, one fresh Client per batch so concurrent batches never share
// error state.
//
// Error mapping:
//   - broker not connected or publish failure: transaction.ErrNoTransport
//   - unknown protocol or device without address: transaction.ErrNoPort
//   - gateway status other than "ok": *transaction.ProtocolError
//   - no response before the deadline: context.DeadlineExceeded
package link
