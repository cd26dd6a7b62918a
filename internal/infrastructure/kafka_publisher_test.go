package infrastructure

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"adreport/internal/domain"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherSignsMessages(t *testing.T) {
	log, m := testDeps()
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, secret: "s3cret", logger: log, metrics: m}

	row := domain.ExportRow{
		ProjectID: "p1",
		Level:     domain.LevelSection,
		EntityID:  "s1",
		Label:     "Lotion",
		Row:       domain.NewDailyMetricRow(day("2024-05-01"), domain.Totals{Spend: 1000, MspCV: 4}),
	}
	require.NoError(t, p.Publish(context.Background(), []domain.ExportRow{row}))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "p1:section:s1", string(msg.Key))

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(msg.Value)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, signatureHeader, msg.Headers[0].Key)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 250.0, decoded["row"].(map[string]any)["cpa"])
}

func TestKafkaPublisherErrors(t *testing.T) {
	log, m := testDeps()
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, logger: log, metrics: m}

	err := p.Publish(context.Background(), []domain.ExportRow{{ProjectID: "p1"}})
	assert.ErrorContains(t, err, "broker down")

	assert.NoError(t, p.Publish(context.Background(), nil))
}
