// Package mqttlink carries receiver control channels over the hub's MQTT
// broker.
//
// Each receiver owns three topics under the receiver prefix:
//
//	castlogic/receiver/{address}/presence   retained "online" / "offline"
//	castlogic/receiver/{address}/status     JSON status pushes
//	castlogic/receiver/{address}/command    JSON commands from the hub
//
// A channel is live from the first "online" presence until the receiver
// reports "offline", the broker connection is lost, or the channel is
// closed.
package mqttlink
