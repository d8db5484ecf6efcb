package kafkaconsumer

import "time"

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

// NewConfig applies the consumer-group timing defaults on top of the
// broker/topic/group settings from the app config.
func NewConfig(brokers []string, topic, groupID string) Config {
	return Config{
		Brokers:             brokers,
		Topic:               topic,
		GroupID:             groupID,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: false,
	}
}
