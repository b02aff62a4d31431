package product

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"webpay-service/internal/config"
	"webpay-service/internal/model"
)

var _ Product = (*WebApp)(nil)

// WebApp binds a store-front application to the Product view.
type WebApp struct {
	app       *model.WebApp
	site      config.Site
	account   *accountLookup
	publicIDs PublicIDStore
}

func NewWebApp(app *model.WebApp, site config.Site, accounts AccountStore, publicIDs PublicIDStore) *WebApp {
	return &WebApp{
		app:       app,
		site:      site,
		account:   &accountLookup{store: accounts, addonID: app.ID},
		publicIDs: publicIDs,
	}
}

func (p *WebApp) ID() int64 { return p.app.ID }

func (p *WebApp) ExternalID() string { return ExternalID(p.site, p.app.ID) }

func (p *WebApp) Name() string { return p.app.Name }

func (p *WebApp) AddonID() int64 { return p.app.ID }

// Amount resolves the tier price for region, using the tier default when there is no
// region or the region has no price of its own.
func (p *WebApp) Amount(region *model.Region) (model.Amount, bool) {
	if region != nil {
		if amount, ok := p.app.PriceTier.ByRegion[region.Slug]; ok {
			return amount, true
		}
	}
	return p.app.PriceTier.Default, true
}

func (p *WebApp) Price() model.PriceTier { return p.app.PriceTier }

func (p *WebApp) Icons() map[string]string {
	icons := make(map[string]string, len(p.site.IconSizes))
	for _, size := range p.site.IconSizes {
		icons[strconv.Itoa(size)] = Absolutify(p.site, p.iconURL(size))
	}
	return icons
}

func (p *WebApp) iconURL(size int) string {
	if p.app.IconType == "" {
		static := p.site.StaticURL
		if static == "" {
			static = p.site.URL
		}
		return fmt.Sprintf("%s/img/hub/default-%d.png", strings.TrimRight(static, "/"), size)
	}
	return fmt.Sprintf("/img/uploads/addon_icons/%d/%d-%d.png?modified=%s",
		p.app.ID/1000, p.app.ID, size, p.app.IconHash)
}

func (p *WebApp) Description() string { return p.app.Description }

func (p *WebApp) ApplicationSize() *int64 { return p.app.FileSize }

func (p *WebApp) SellerUUID(ctx context.Context) (uuid.UUID, error) {
	account, err := p.account.get(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return account.SellerUUID, nil
}

func (p *WebApp) PublicID(ctx context.Context) (uuid.UUID, error) {
	if p.app.PublicID != nil {
		return *p.app.PublicID, nil
	}

	id, err := p.publicIDs.GetOrCreatePublicID(ctx, p.app.ID)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "public id")
	}
	p.app.PublicID = &id
	return id, nil
}

func (p *WebApp) ProductData(ctx context.Context, c *model.Contribution) (url.Values, error) {
	seller, err := p.SellerUUID(ctx)
	if err != nil {
		return nil, err
	}
	publicID, err := p.PublicID(ctx)
	if err != nil {
		return nil, err
	}

	return url.Values{
		"addon_id":         {strconv.FormatInt(p.app.ID, 10)},
		"application_size": {formatSize(p.ApplicationSize())},
		"contrib_uuid":     {c.UUID.String()},
		"seller_uuid":      {seller.String()},
		"public_id":        {publicID.String()},
	}, nil
}
