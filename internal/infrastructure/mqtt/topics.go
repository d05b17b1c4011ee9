package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for Cast Logic MQTT traffic.
//
// Receivers use the flat scheme {receiver_prefix}/{address}/{channel}
// where channel is presence, status or command.
const (
	// TopicPrefix is the root of every Cast Logic topic.
	TopicPrefix = "castlogic"

	// TopicPrefixCore is the base for topics published by Core.
	TopicPrefixCore = "castlogic/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "castlogic/system"

	// DefaultReceiverPrefix is the base for receiver control channels.
	DefaultReceiverPrefix = "castlogic/receiver"
)

// Presence payloads published (retained) by receivers.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Topics provides builders for Cast Logic MQTT topics.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.ReceiverStatus("kitchen-speaker")
//	// Returns: "castlogic/receiver/kitchen-speaker/status"
//
// ReceiverPrefix overrides DefaultReceiverPrefix.
type Topics struct {
	ReceiverPrefix string
}

func (t Topics) receiverRoot() string {
	if p := strings.TrimSuffix(t.ReceiverPrefix, "/"); p != "" {
		return p
	}
	return DefaultReceiverPrefix
}

// ReceiverPresence returns the retained presence topic of a receiver.
//
// Example: castlogic/receiver/kitchen-speaker/presence
func (t Topics) ReceiverPresence(address string) string {
	return fmt.Sprintf("%s/%s/presence", t.receiverRoot(), address)
}

// ReceiverStatus returns the topic a receiver pushes its status to.
//
// Example: castlogic/receiver/kitchen-speaker/status
func (t Topics) ReceiverStatus(address string) string {
	return fmt.Sprintf("%s/%s/status", t.receiverRoot(), address)
}

// ReceiverCommand returns the topic Core sends commands to.
//
// Example: castlogic/receiver/kitchen-speaker/command
func (t Topics) ReceiverCommand(address string) string {
	return fmt.Sprintf("%s/%s/command", t.receiverRoot(), address)
}

// AllReceiverStatuses returns a pattern matching every receiver status.
//
// Pattern: castlogic/receiver/+/status
func (t Topics) AllReceiverStatuses() string {
	return fmt.Sprintf("%s/+/status", t.receiverRoot())
}

// CoreAlert returns the topic for system alerts.
//
// Example: castlogic/core/alert/receiver-unreachable
func (Topics) CoreAlert(alertID string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefixCore, alertID)
}

// CoreEvent returns the topic for hub events.
//
// Example: castlogic/core/event/receiver.connectivity
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// AllCoreAlerts returns a pattern matching all alerts.
//
// Pattern: castlogic/core/alert/+
func (Topics) AllCoreAlerts() string {
	return fmt.Sprintf("%s/alert/+", TopicPrefixCore)
}

// SystemStatus returns the system status topic.
//
// Example: castlogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all Cast Logic topics.
//
// Pattern: castlogic/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// ValidTopicLevel reports whether s can be used as a single topic level:
// non-empty and free of separators and wildcards.
func ValidTopicLevel(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#\x00")
}
