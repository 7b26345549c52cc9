package kafkax

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a writer that routes by message key, so all events for
// one aggregate land on the same partition in order.
func NewWriter(brokers string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(SplitBrokers(brokers)...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewReader tails a topic from the latest offset; GroupID may be empty for
// an ad-hoc tail.
func NewReader(brokers, topic, groupID string) *kafka.Reader {
	cfg := kafka.ReaderConfig{
		Brokers:  SplitBrokers(brokers),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	}
	if groupID == "" {
		cfg.StartOffset = kafka.LastOffset
	}
	return kafka.NewReader(cfg)
}
