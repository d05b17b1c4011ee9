package mqttlink

import "errors"

var (
	// ErrReceiverOffline is reported when a receiver publishes offline presence.
	ErrReceiverOffline = errors.New("mqttlink: receiver went offline")

	// ErrBrokerLost is reported on every open channel when the broker
	// connection drops.
	ErrBrokerLost = errors.New("mqttlink: broker connection lost")

	// ErrPresenceTimeout is returned by Open when no online presence arrives
	// within the connect timeout.
	ErrPresenceTimeout = errors.New("mqttlink: no online presence before timeout")

	// ErrChannelClosed is returned by Send on a dropped or closed channel.
	ErrChannelClosed = errors.New("mqttlink: channel closed")

	// ErrInvalidAddress is returned by Open for an address that cannot be
	// used as a topic level.
	ErrInvalidAddress = errors.New("mqttlink: invalid receiver address")

	// ErrAddressInUse is returned by Open while another live channel holds
	// the address.
	ErrAddressInUse = errors.New("mqttlink: address already in use")
)
