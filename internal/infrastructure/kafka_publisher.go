package infrastructure

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"adreport/internal/domain"
	"adreport/pkg/config"
	"adreport/pkg/logger"
	"adreport/pkg/metrics"

	"github.com/segmentio/kafka-go"
)

const signatureHeader = "X-Signature"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher ships export rows as one message per row, keyed by project
// and entity so rows of one entity land on the same partition.
type KafkaPublisher struct {
	writer  messageWriter
	secret  string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *logger.Logger, metrics *metrics.Metrics) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 250 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, secret: cfg.Secret, logger: logger, metrics: metrics}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rows []domain.ExportRow) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()

	msgs := make([]kafka.Message, 0, len(rows))
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			p.metrics.RecordExternalAPIFailure("kafka", "json_marshal")
			return fmt.Errorf("failed to marshal export row: %w", err)
		}
		msg := kafka.Message{
			Key:   []byte(row.ProjectID + ":" + string(row.Level) + ":" + row.EntityID),
			Value: payload,
		}
		if p.secret != "" {
			msg.Headers = append(msg.Headers, kafka.Header{Key: signatureHeader, Value: []byte(p.sign(payload))})
		}
		msgs = append(msgs, msg)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.metrics.RecordExternalAPIFailure("kafka", "write")
		return fmt.Errorf("failed to publish export rows: %w", err)
	}

	duration := time.Since(start)
	p.metrics.RecordExternalAPICall("kafka", "success", duration)
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"records":  len(rows),
		"duration": duration,
	}).Info("Successfully exported snapshot rows")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// generates HMAC-SHA256 signature for the payload
func (p *KafkaPublisher) sign(payload []byte) string {
	h := hmac.New(sha256.New, []byte(p.secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
