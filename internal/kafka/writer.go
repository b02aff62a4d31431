package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"webpay-service/internal/config"
	"webpay-service/internal/message"
)

const (
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 100
)

func NewWriter(cfg config.Kafka) *kafka.Writer {
	batchSize := cfg.Writer.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batchTimeout := cfg.Writer.BatchTimeoutMs
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(cfg.Broker.URL, ",")...),
		Topic:                  cfg.Topic.PaymentNotices,
		Balancer:               &kafka.ReferenceHash{},
		BatchSize:              batchSize,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           time.Duration(batchTimeout) * time.Millisecond,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NoticePublisher puts verified payment notices on the notices topic.
type NoticePublisher struct {
	writer messageWriter
}

func NewNoticePublisher(writer messageWriter) *NoticePublisher {
	return &NoticePublisher{writer: writer}
}

func (p *NoticePublisher) Publish(ctx context.Context, notice message.PaymentNotice) error {
	value, err := json.Marshal(notice)
	if err != nil {
		return errors.Wrap(err, "marshal payment notice")
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		// contribution uuid as key keeps notices for one contribution ordered
		Key:   []byte(notice.ContribUUID.String()),
		Value: value,
	})
	if err != nil {
		return errors.Wrap(err, "write payment notice")
	}
	return nil
}
