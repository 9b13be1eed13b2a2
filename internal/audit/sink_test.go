package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"ncbot/internal/recast"
	"ncbot/pkg/kafka"
)

func sampleEvent() recast.Event {
	return recast.Event{
		EventID:     "evt-1",
		RunID:       "run-1",
		AccountID:   "0xabc",
		Handle:      "alice",
		PostID:      "0xpost",
		PublishedAt: time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC),
		Outcome:     recast.OutcomeFailed,
		Error:       "status 502",
		Timestamp:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	require.NoError(t, NewLogSink(logger).Record(context.Background(), sampleEvent()))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "Recast dispatch", line["msg"])
	require.Equal(t, "failed", line["outcome"])
	require.Equal(t, "status 502", line["error"])
	require.Equal(t, "run-1", line["run_id"])
}

type captureProducer struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
	err     error
}

func (p *captureProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return p.err
}

func TestKafkaSink(t *testing.T) {
	p := &captureProducer{}
	ev := sampleEvent()

	require.NoError(t, NewKafkaSink(p, "recast_events", "ncbot").Record(context.Background(), ev))

	require.Equal(t, "recast_events", p.topic)
	require.Equal(t, "0xabc", string(p.key))
	require.Equal(t, EventType, p.headers["event_type"])
	require.Equal(t, "run-1", p.headers["run_id"])

	var env kafka.Envelope
	require.NoError(t, json.Unmarshal(p.value, &env))
	require.Equal(t, "evt-1", env.ID)
	require.Equal(t, "ncbot", env.Source)
	require.True(t, ev.Timestamp.Equal(env.Timestamp))

	var got recast.Event
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Equal(t, ev.PostID, got.PostID)
	require.Equal(t, ev.Outcome, got.Outcome)
}

type stubSink struct {
	calls int
	err   error
}

func (s *stubSink) Record(context.Context, recast.Event) error {
	s.calls++
	return s.err
}

func TestMultiRecordsToAllSinks(t *testing.T) {
	failing := &stubSink{err: errors.New("broker down")}
	ok := &stubSink{}

	err := Multi{failing, ok}.Record(context.Background(), sampleEvent())

	require.ErrorContains(t, err, "broker down")
	require.Equal(t, 1, failing.calls)
	require.Equal(t, 1, ok.calls)
}
