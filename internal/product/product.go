// Package product adapts purchasable catalog records into the uniform view the
// purchase token is built from.
package product

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"webpay-service/internal/config"
	"webpay-service/internal/db"
	"webpay-service/internal/model"
)

var ErrPaymentAccountNotFound = errors.New("payment account not found")

// Product is the read-only view of something that can be bought.
type Product interface {
	ID() int64
	ExternalID() string
	Name() string
	// AddonID is the owning application.
	AddonID() int64
	// Amount returns false when no price can be determined for the region.
	Amount(region *model.Region) (model.Amount, bool)
	Price() model.PriceTier
	Icons() map[string]string
	Description() string
	// ApplicationSize returns nil when the size is unknown.
	ApplicationSize() *int64
	SellerUUID(ctx context.Context) (uuid.UUID, error)
	ProductData(ctx context.Context, c *model.Contribution) (url.Values, error)
}

type AccountStore interface {
	GetPaymentAccount(ctx context.Context, addonID int64) (*model.PaymentAccount, error)
}

type PublicIDStore interface {
	GetOrCreatePublicID(ctx context.Context, addonID int64) (uuid.UUID, error)
}

// ExternalID is the identifier exposed to payment systems. It is unique across
// environments because it carries the site domain.
func ExternalID(site config.Site, pk int64) string {
	domain := site.Domain
	if domain == "" {
		domain = "marketplace-dev"
	}
	return fmt.Sprintf("%s:%d", domain, pk)
}

// Absolutify turns a site relative path into an absolute URL.
func Absolutify(site config.Site, path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	return strings.TrimRight(site.URL, "/") + "/" + strings.TrimLeft(path, "/")
}

// accountLookup memoizes the payment account of one addon for the lifetime of the adapter.
type accountLookup struct {
	store   AccountStore
	addonID int64
	account *model.PaymentAccount
}

func (l *accountLookup) get(ctx context.Context) (*model.PaymentAccount, error) {
	if l.account != nil {
		return l.account, nil
	}

	account, err := l.store.GetPaymentAccount(ctx, l.addonID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, errors.Wrapf(ErrPaymentAccountNotFound, "addon %d", l.addonID)
		}
		return nil, errors.Wrap(err, "lookup payment account")
	}
	l.account = account
	return account, nil
}

func formatSize(size *int64) string {
	if size == nil {
		return ""
	}
	return fmt.Sprint(*size)
}
