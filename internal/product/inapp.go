package product

import (
	"context"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"webpay-service/internal/config"
	"webpay-service/internal/model"
)

const inAppIconSize = "64"

var _ Product = (*InApp)(nil)

// InApp binds an item sold inside an application to the Product view.
type InApp struct {
	inapp   *model.InApp
	site    config.Site
	account *accountLookup
}

func NewInApp(inapp *model.InApp, site config.Site, accounts AccountStore) *InApp {
	return &InApp{
		inapp:   inapp,
		site:    site,
		account: &accountLookup{store: accounts, addonID: inapp.WebApp.ID},
	}
}

func (p *InApp) ID() int64 { return p.inapp.ID }

func (p *InApp) ExternalID() string { return "inapp." + ExternalID(p.site, p.inapp.ID) }

func (p *InApp) Name() string { return p.inapp.Name }

func (p *InApp) AddonID() int64 { return p.inapp.WebApp.ID }

// Amount is never available: in-app purchases are anonymous so there is no region.
func (p *InApp) Amount(*model.Region) (model.Amount, bool) { return model.Amount{}, false }

func (p *InApp) Price() model.PriceTier { return p.inapp.Price }

// Icons only has a 64px entry built from the item logo.
func (p *InApp) Icons() map[string]string {
	return map[string]string{inAppIconSize: Absolutify(p.site, p.inapp.LogoURL)}
}

func (p *InApp) Description() string { return p.inapp.WebApp.Description }

// ApplicationSize is unresolved for in-app items.
func (p *InApp) ApplicationSize() *int64 { return nil }

func (p *InApp) SellerUUID(ctx context.Context) (uuid.UUID, error) {
	account, err := p.account.get(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return account.SellerUUID, nil
}

func (p *InApp) ProductData(ctx context.Context, c *model.Contribution) (url.Values, error) {
	seller, err := p.SellerUUID(ctx)
	if err != nil {
		return nil, err
	}

	return url.Values{
		"addon_id":         {strconv.FormatInt(p.inapp.WebApp.ID, 10)},
		"inapp_id":         {strconv.FormatInt(p.inapp.ID, 10)},
		"application_size": {formatSize(p.ApplicationSize())},
		"contrib_uuid":     {c.UUID.String()},
		"seller_uuid":      {seller.String()},
	}, nil
}
