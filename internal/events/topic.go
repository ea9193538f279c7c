package events

import "strings"

// topicPrefix is shared by every per-user event topic.
const topicPrefix = "event/"

// Topic returns the topic carrying events for userID.
func Topic(userID string) string {
	return topicPrefix + userID + "/"
}

// IsEventTopic reports whether topic carries events.
func IsEventTopic(topic string) bool {
	return strings.HasPrefix(topic, topicPrefix)
}
