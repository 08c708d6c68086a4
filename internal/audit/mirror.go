package audit

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
)

// Producer abstracts the Kafka writer behavior the mirror needs, matching
// the subset of *kafka.Writer's interface the mirror actually calls so
// tests can supply a fake without importing kafka-go for the fake too.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ExportMirror publishes every appended event to an external Kafka topic
// for downstream compliance tooling (§4.9 supplement: Audit Export Mirror).
// It never blocks or fails ingestion: a mirror write failure is logged and
// swallowed, since the audit_events table remains the system of record.
type ExportMirror struct {
	producer Producer
	topic    string
}

// NewExportMirror returns nil if cfg has no brokers configured, so callers
// can wrap every Log with NewMirroredLog(log, mirror) unconditionally and
// get a real no-op when the mirror is disabled.
func NewExportMirror(cfg config.KafkaConfig, producer Producer) *ExportMirror {
	if len(cfg.Brokers) == 0 || producer == nil {
		return nil
	}
	topic := cfg.TopicPrefix + "audit.events.mirror"
	return &ExportMirror{producer: producer, topic: topic}
}

func (m *ExportMirror) publish(ctx context.Context, event domain.Event) {
	if m == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("audit mirror: marshal failed for event_id=%s: %v", event.EventID, err)
		return
	}
	msg := kafka.Message{
		Topic: m.topic,
		Key:   []byte(event.TenantID),
		Value: payload,
	}
	if err := m.producer.WriteMessages(ctx, msg); err != nil {
		log.Printf("audit mirror: publish failed for event_id=%s: %v", event.EventID, err)
	}
}

// MirroredLog wraps a Log and fans every successful Append out to an
// ExportMirror. A nil mirror makes this a pure pass-through.
type MirroredLog struct {
	Log
	mirror *ExportMirror
}

// NewMirroredLog wires inner with mirror. mirror may be nil.
func NewMirroredLog(inner Log, mirror *ExportMirror) *MirroredLog {
	return &MirroredLog{Log: inner, mirror: mirror}
}

func (m *MirroredLog) Append(ctx context.Context, event domain.Event) error {
	if err := m.Log.Append(ctx, event); err != nil {
		return err
	}
	m.mirror.publish(ctx, event)
	return nil
}
