package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"

	"webpay-service/internal/message"
)

type Metrics struct {
	ReadErrorCounter      *metrics.Counter
	UnmarshalErrorCounter *metrics.Counter
	ProcessErrorCounter   *metrics.Counter
	CommitErrorCounter    *metrics.Counter
	SuccessCounter        *metrics.Counter
}

var paymentNoticeMetrics = Metrics{
	ReadErrorCounter:      metrics.GetOrCreateCounter(`kafka_reader_total{result="read_error",type="payment_notice"}`),
	UnmarshalErrorCounter: metrics.GetOrCreateCounter(`kafka_reader_total{result="unmarshal_error",type="payment_notice"}`),
	ProcessErrorCounter:   metrics.GetOrCreateCounter(`kafka_reader_total{result="process_error",type="payment_notice"}`),
	CommitErrorCounter:    metrics.GetOrCreateCounter(`kafka_reader_total{result="commit_error",type="payment_notice"}`),
	SuccessCounter:        metrics.GetOrCreateCounter(`kafka_reader_total{result="success",type="payment_notice"}`),
}

type NoticeProcessor interface {
	Process(ctx context.Context, notice message.PaymentNotice) error
}

// processRetryBackoff is the wait between attempts at a failing message. The last delay
// repeats until the message succeeds or the context is done.
var processRetryBackoff = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewReader(kafkaURL, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(kafkaURL, ","),
		GroupID: groupID,
		Topic:   topic,
	})
}

// ReadPaymentNotices feeds notices from reader to processor until ctx is done.
func ReadPaymentNotices(ctx context.Context, reader messageReader, processor NoticeProcessor, logger *slog.Logger) {
	readMessages(ctx, reader, logger, func(ctx context.Context, value []byte) error {
		var n message.PaymentNotice
		if err := json.Unmarshal(value, &n); err != nil {
			logger.ErrorContext(ctx, "Error unmarshalling message", "error", err)
			paymentNoticeMetrics.UnmarshalErrorCounter.Inc()
			return nil
		}
		return processor.Process(ctx, n)
	}, paymentNoticeMetrics)
}

// readMessages commits a message only once process has accepted it, so a message still
// failing at shutdown is delivered again on the next start.
func readMessages(ctx context.Context, reader messageReader, logger *slog.Logger, process func(context.Context, []byte) error, kafkaMetrics Metrics) {
	for {
		logger.DebugContext(ctx, "Waiting for messages from Kafka...")
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.InfoContext(ctx, "Context done, stopping reader")
				return
			}
			logger.ErrorContext(ctx, "Error reading message", "error", err)
			kafkaMetrics.ReadErrorCounter.Inc()
			continue
		}
		logger.InfoContext(ctx, "Received message", "topic", m.Topic, "key", string(m.Key), "offset", m.Offset)

		if !processWithRetry(ctx, m, logger, process, kafkaMetrics) {
			logger.InfoContext(ctx, "Context done, leaving message uncommitted", "offset", m.Offset)
			return
		}

		if err := reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.ErrorContext(ctx, "Error committing message", "error", err, "offset", m.Offset)
			kafkaMetrics.CommitErrorCounter.Inc()
			continue
		}
		kafkaMetrics.SuccessCounter.Inc()
	}
}

func processWithRetry(ctx context.Context, m kafka.Message, logger *slog.Logger, process func(context.Context, []byte) error, kafkaMetrics Metrics) bool {
	for attempt := 0; ; attempt++ {
		err := process(ctx, m.Value)
		if err == nil {
			return true
		}
		logger.ErrorContext(ctx, "Error processing message", "error", err, "attempt", attempt+1)
		kafkaMetrics.ProcessErrorCounter.Inc()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(processRetryBackoff[min(attempt, len(processRetryBackoff)-1)]):
		}
	}
}
