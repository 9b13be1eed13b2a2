// Package audit records one event per dispatch attempt, to the log and
// optionally to Kafka.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ncbot/internal/recast"
	"ncbot/pkg/kafka"
	"ncbot/pkg/logging"
)

// EventType names dispatch events on the wire.
const EventType = "recast.dispatch"

// LogSink writes events as structured log lines.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, ev recast.Event) error {
	entry := s.logger.WithFields(logging.Fields{
		"audit":        true,
		"event_id":     ev.EventID,
		"run_id":       ev.RunID,
		"account_id":   ev.AccountID,
		"handle":       ev.Handle,
		"post_id":      ev.PostID,
		"published_at": ev.PublishedAt,
		"outcome":      ev.Outcome,
	})
	if ev.Error != "" {
		entry = entry.WithField("error", ev.Error)
	}
	entry.Info("Recast dispatch")
	return nil
}

// Producer publishes one record.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSink publishes events keyed by account so one account's events stay
// ordered within a partition.
type KafkaSink struct {
	producer Producer
	topic    string
	source   string
}

func NewKafkaSink(producer Producer, topic, source string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, source: source}
}

func (s *KafkaSink) Record(ctx context.Context, ev recast.Event) error {
	env, err := kafka.NewEnvelope(ev.EventID, EventType, s.source, ev)
	if err != nil {
		return err
	}
	env.Timestamp = ev.Timestamp
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	headers := env.Headers()
	headers["run_id"] = ev.RunID
	headers["outcome"] = string(ev.Outcome)
	return s.producer.ProduceMessage(ctx, s.topic, []byte(ev.AccountID), value, headers)
}

// Multi fans an event out to every sink and joins their errors.
type Multi []recast.EventSink

func (m Multi) Record(ctx context.Context, ev recast.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
