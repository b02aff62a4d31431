package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpay-service/internal/config"
	"webpay-service/internal/message"
)

type mockWriter struct {
	messages []kafka.Message
	err      error
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

// mockReader serves the queued results and then cancels the reading context.
type mockReader struct {
	results   []readResult
	committed []kafka.Message
	cancel    context.CancelFunc
}

type readResult struct {
	msg kafka.Message
	err error
}

func (m *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(m.results) == 0 {
		m.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r.msg, r.err
}

func (m *mockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	m.committed = append(m.committed, msgs...)
	return nil
}

// recordingProcessor fails the first failures calls and accepts the rest. With onFail set it
// runs that on every failure instead.
type recordingProcessor struct {
	notices  []message.PaymentNotice
	failures int
	onFail   func()
}

func (p *recordingProcessor) Process(_ context.Context, n message.PaymentNotice) error {
	p.notices = append(p.notices, n)
	if p.onFail != nil {
		p.onFail()
		return errors.New("db unavailable")
	}
	if p.failures > 0 {
		p.failures--
		return errors.New("db unavailable")
	}
	return nil
}

func noticeMessage(t *testing.T, offset int64, notice message.PaymentNotice) kafka.Message {
	t.Helper()
	value, err := json.Marshal(notice)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: value}
}

func fastRetries(t *testing.T) {
	t.Helper()
	saved := processRetryBackoff
	processRetryBackoff = []time.Duration{time.Millisecond}
	t.Cleanup(func() { processRetryBackoff = saved })
}

func TestNoticePublisher_Publish(t *testing.T) {
	writer := &mockWriter{}
	notice := message.PaymentNotice{ContribUUID: uuid.New(), Kind: "postback", TransactionID: "webpay:1",
		ReceivedAt: time.Now().UTC()}

	require.NoError(t, NewNoticePublisher(writer).Publish(context.Background(), notice))
	require.Len(t, writer.messages, 1)
	assert.Equal(t, notice.ContribUUID.String(), string(writer.messages[0].Key))

	var got message.PaymentNotice
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &got))
	assert.Equal(t, notice.ContribUUID, got.ContribUUID)
	assert.Equal(t, "postback", got.Kind)
}

func TestNoticePublisher_WriteError(t *testing.T) {
	err := NewNoticePublisher(&mockWriter{err: errors.New("broker down")}).
		Publish(context.Background(), message.PaymentNotice{ContribUUID: uuid.New()})
	assert.ErrorContains(t, err, "broker down")
}

func TestReadPaymentNotices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notice := message.PaymentNotice{ContribUUID: uuid.New(), Kind: "chargeback", TransactionID: "webpay:2"}

	reader := &mockReader{
		cancel: cancel,
		results: []readResult{
			{err: errors.New("transient")},
			{msg: kafka.Message{Offset: 1, Value: []byte("{not json")}},
			{msg: noticeMessage(t, 2, notice)},
		},
	}
	processor := &recordingProcessor{}

	ReadPaymentNotices(ctx, reader, processor, slog.Default())

	require.Len(t, processor.notices, 1)
	assert.Equal(t, notice.ContribUUID, processor.notices[0].ContribUUID)
	assert.Equal(t, "chargeback", processor.notices[0].Kind)

	// undecodable messages are skipped for good
	require.Len(t, reader.committed, 2)
	assert.Equal(t, int64(1), reader.committed[0].Offset)
	assert.Equal(t, int64(2), reader.committed[1].Offset)
}

func TestReadPaymentNotices_RetriesBeforeCommit(t *testing.T) {
	fastRetries(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notice := message.PaymentNotice{ContribUUID: uuid.New(), Kind: "postback", TransactionID: "webpay:3"}
	reader := &mockReader{cancel: cancel, results: []readResult{{msg: noticeMessage(t, 7, notice)}}}
	processor := &recordingProcessor{failures: 2}

	ReadPaymentNotices(ctx, reader, processor, slog.Default())

	assert.Len(t, processor.notices, 3)
	require.Len(t, reader.committed, 1)
	assert.Equal(t, int64(7), reader.committed[0].Offset)
}

func TestReadPaymentNotices_UncommittedOnShutdown(t *testing.T) {
	fastRetries(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notice := message.PaymentNotice{ContribUUID: uuid.New(), Kind: "postback", TransactionID: "webpay:4"}
	reader := &mockReader{cancel: cancel, results: []readResult{{msg: noticeMessage(t, 9, notice)}}}
	processor := &recordingProcessor{onFail: cancel}

	ReadPaymentNotices(ctx, reader, processor, slog.Default())

	assert.NotEmpty(t, processor.notices)
	assert.Empty(t, reader.committed)
}

func TestNewWriter_Defaults(t *testing.T) {
	w := NewWriter(config.Kafka{
		Broker: config.KafkaBroker{URL: "localhost:9092"},
		Topic:  config.KafkaTopic{PaymentNotices: "payment-notices"},
	})

	assert.Equal(t, "payment-notices", w.Topic)
	assert.Equal(t, DefaultBatchSize, w.BatchSize)
	assert.Equal(t, DefaultBatchTimeout*time.Millisecond, w.BatchTimeout)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
