package message

import (
	"time"

	"github.com/google/uuid"
)

// PaymentNotice is a verified processor notice on its way to the status processor.
type PaymentNotice struct {
	ContribUUID   uuid.UUID `json:"contribUuid"`
	Kind          string    `json:"kind"`
	TransactionID string    `json:"transactionId"`
	Reason        string    `json:"reason,omitempty"`
	ReceivedAt    time.Time `json:"receivedAt"`
}
