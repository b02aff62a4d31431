package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type ContributionStatus string

const (
	StatusPending   ContributionStatus = "pending"
	StatusConfirmed ContributionStatus = "confirmed"
	StatusFailed    ContributionStatus = "failed"
	StatusRefunded  ContributionStatus = "refunded"
)

var ErrInvalidTransition = errors.New("invalid contribution status transition")

var transitions = map[ContributionStatus][]ContributionStatus{
	StatusPending:   {StatusConfirmed, StatusFailed, StatusRefunded},
	StatusConfirmed: {StatusRefunded},
}

// CanTransition reports whether a contribution may move from one status to another.
func CanTransition(from, to ContributionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Amount is a price in minor units.
type Amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

type PriceTier struct {
	ID       int64
	Name     string
	Default  Amount
	ByRegion map[string]Amount
}

// Region is a storefront region identified by its slug, e.g. "us".
type Region struct {
	Slug string
}

type Contribution struct {
	UUID        uuid.UUID
	AddonID     int64
	Amount      *Amount
	PriceTierID int64
	ClientData  *string
	PayKey      *string
	Source      *string
	Locale      *string
	Status      ContributionStatus
	UserID      *int64
	TxnID       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type PaymentAccount struct {
	ID         int64
	AddonID    int64
	SellerUUID uuid.UUID
}

type WebApp struct {
	ID          int64
	Name        string
	Description string
	IconType    string
	IconHash    string
	PublicID    *uuid.UUID
	PriceTier   PriceTier
	FileSize    *int64
}

type InApp struct {
	ID      int64
	Name    string
	LogoURL string
	WebApp  WebApp
	Price   PriceTier
}
