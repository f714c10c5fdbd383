package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const pushTimeout = 10 * time.Second

// MessageReader is the part of *kafka.Reader the forwarder uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// EventPusher ships one JSON-encoded auth event. *loki.Client satisfies it.
type EventPusher interface {
	PushEventJSON(ctx context.Context, raw []byte) error
}

// NewKafkaReader returns a consumer-group reader for the auth events topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
}

// Forwarder copies auth events from Kafka to a log store. Push failures are logged and the
// message is skipped; offsets are committed by the reader either way.
type Forwarder struct {
	reader MessageReader
	pusher EventPusher
	log    *slog.Logger
}

// NewForwarder returns a Forwarder. A nil log uses slog.Default.
func NewForwarder(reader MessageReader, pusher EventPusher, log *slog.Logger) *Forwarder {
	if log == nil {
		log = slog.Default()
	}
	return &Forwarder{reader: reader, pusher: pusher, log: log}
}

// Run forwards messages until ctx is done, then closes the reader.
func (f *Forwarder) Run(ctx context.Context) {
	defer f.reader.Close()
	for {
		msg, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Warn("kafka read failed", "op", "forward", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		if err := f.pusher.PushEventJSON(pushCtx, msg.Value); err != nil {
			f.log.Warn("loki push failed", "op", "forward", "offset", msg.Offset, "error", err)
		}
		cancel()
	}
}
