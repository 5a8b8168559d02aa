package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
const (
	// TopicPrefix is the root of every Gray Logic topic.
	TopicPrefix = "graylogic"

	// TopicPrefixFleet is the base for batch outcome topics.
	TopicPrefixFleet = "graylogic/fleet"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for the topics the fleet service uses.
//
// Gateway traffic uses the flat request/response scheme
// graylogic/{request|response}/{protocol}/{request_id}:
//
//	topics := mqtt.Topics{}
//	topics.GatewayRequest("dlms", "req-abc123")
//	// Returns: "graylogic/request/dlms/req-abc123"
type Topics struct{}

// GatewayRequest returns the topic a request to a protocol gateway is sent on.
//
// Example: graylogic/request/dlms/req-abc123
func (Topics) GatewayRequest(protocol, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, protocol, requestID)
}

// GatewayResponse returns the topic the gateway answers a request on.
//
// Example: graylogic/response/dlms/req-abc123
func (Topics) GatewayResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, protocol, requestID)
}

// GatewayResponses returns a pattern matching every response of one gateway.
//
// Pattern: graylogic/response/dlms/+
func (Topics) GatewayResponses(protocol string) string {
	return fmt.Sprintf("%s/response/%s/+", TopicPrefix, protocol)
}

// GatewayHealth returns the topic a gateway reports its health on.
//
// Example: graylogic/health/dlms
func (Topics) GatewayHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// FleetResult returns the topic one device outcome of a batch is published on.
//
// Example: graylogic/fleet/0b6c.../result/meter-1
func (Topics) FleetResult(batchID, deviceID string) string {
	return fmt.Sprintf("%s/%s/result/%s", TopicPrefixFleet, batchID, deviceID)
}

// FleetSummary returns the topic the batch summary is published on.
//
// Example: graylogic/fleet/0b6c.../summary
func (Topics) FleetSummary(batchID string) string {
	return fmt.Sprintf("%s/%s/summary", TopicPrefixFleet, batchID)
}

// AllFleetResults returns a pattern matching every device outcome of every batch.
//
// Pattern: graylogic/fleet/+/result/+
func (Topics) AllFleetResults() string {
	return fmt.Sprintf("%s/+/result/+", TopicPrefixFleet)
}

// SystemStatus returns the retained service status topic (also the LWT topic).
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// RequestIDFromTopic extracts the request id from a gateway response topic.
// It returns false for any other topic.
func RequestIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "response" || parts[3] == "" {
		return "", false
	}
	return parts[3], true
}
