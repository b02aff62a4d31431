package event

import (
	"context"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"webpay-service/internal/db"
	"webpay-service/internal/logging"
	"webpay-service/internal/message"
	"webpay-service/internal/model"
	"webpay-service/internal/webpay"
)

var (
	noticeAppliedCounter = metrics.GetOrCreateCounter(`payment_notice_total{result="applied"}`)
	noticeIgnoredCounter = metrics.GetOrCreateCounter(`payment_notice_total{result="ignored"}`)
	noticeUnknownCounter = metrics.GetOrCreateCounter(`payment_notice_total{result="unknown_kind"}`)
	noticeFailedCounter  = metrics.GetOrCreateCounter(`payment_notice_total{result="update_failed"}`)
)

type StatusStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ContributionStatus, txnID *string) (*model.Contribution, error)
}

// Processor applies payment notices to contributions.
type Processor struct {
	repo   StatusStore
	logger *slog.Logger
}

func NewProcessor(repo StatusStore, logger *slog.Logger) *Processor {
	return &Processor{repo: repo, logger: logger}
}

// TargetStatus maps a notice kind to the contribution status it leads to.
func TargetStatus(kind string) (model.ContributionStatus, bool) {
	switch webpay.NoticeKind(kind) {
	case webpay.NoticePostback:
		return model.StatusConfirmed, true
	case webpay.NoticeChargeback:
		return model.StatusRefunded, true
	case webpay.NoticeFailure:
		return model.StatusFailed, true
	}
	return "", false
}

// Process returns an error only for transient store failures; the kafka reader retries
// those before committing. Notices for unknown contributions or transitions that are not
// allowed are logged and dropped.
func (p *Processor) Process(ctx context.Context, notice message.PaymentNotice) error {
	ctx = logging.AppendCtx(ctx, slog.String("contribUuid", notice.ContribUUID.String()))
	p.logger.InfoContext(ctx, "Processing payment notice", "kind", notice.Kind, "transactionId", notice.TransactionID)

	status, ok := TargetStatus(notice.Kind)
	if !ok {
		p.logger.WarnContext(ctx, "Unknown payment notice kind", "kind", notice.Kind)
		noticeUnknownCounter.Inc()
		return nil
	}

	var txnID *string
	if notice.TransactionID != "" {
		txnID = &notice.TransactionID
	}

	_, err := p.repo.UpdateStatus(ctx, notice.ContribUUID, status, txnID)
	switch {
	case err == nil:
		p.logger.InfoContext(ctx, "Contribution status updated", "status", status)
		noticeAppliedCounter.Inc()
		return nil
	case errors.Is(err, db.ErrNotFound), errors.Is(err, model.ErrInvalidTransition):
		p.logger.WarnContext(ctx, "Ignoring payment notice", "error", err)
		noticeIgnoredCounter.Inc()
		return nil
	default:
		p.logger.ErrorContext(ctx, "Error updating contribution status", "error", err)
		noticeFailedCounter.Inc()
		return err
	}
}
