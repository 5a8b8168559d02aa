// Package mqtt provides MQTT connectivity for Gray Logic Fleet.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees (raw and JSON)
//   - Tracked subscriptions restored after reconnect
//   - Last Will and Testament on the system status topic
//
// # Architecture
//
// Device links never talk to meters directly. They send requests to protocol
// gateways over the broker and wait for the matching response:
//
//	transaction server → link → MQTT broker → protocol gateway → device
//
// Batch outcomes are published back on graylogic/fleet/... for other services.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.GatewayResponses("dlms"), 1,
//	    func(topic string, payload []byte) error {
//	        id, _ := mqtt.RequestIDFromTopic(topic)
//	        return deliver(id, payload)
//	    })
package mqtt
