// Package mqtt provides MQTT client connectivity for Cast Logic Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// Receivers talk to Core through the broker. Each receiver publishes a
// retained presence flag and its status on per-address topics and listens
// for commands:
//
//	castlogic/receiver/{address}/presence   receiver → Core (retained)
//	castlogic/receiver/{address}/status     receiver → Core
//	castlogic/receiver/{address}/command    Core → receiver
//
// # Security Considerations
//
//   - Use TLS outside the home LAN (cfg.Broker.TLS=true)
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{ReceiverPrefix: cfg.Receivers.TopicPrefix}
//	err = client.Subscribe(topics.ReceiverStatus("kitchen-speaker"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleStatus(payload)
//	    })
package mqtt
