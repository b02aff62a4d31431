package product

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpay-service/internal/config"
	"webpay-service/internal/db"
	"webpay-service/internal/model"
)

type fakeAccounts struct {
	account *model.PaymentAccount
	err     error
	calls   int
}

func (f *fakeAccounts) GetPaymentAccount(_ context.Context, _ int64) (*model.PaymentAccount, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.account, nil
}

type fakePublicIDs struct {
	id    uuid.UUID
	calls int
}

func (f *fakePublicIDs) GetOrCreatePublicID(_ context.Context, _ int64) (uuid.UUID, error) {
	f.calls++
	return f.id, nil
}

var testSite = config.Site{
	URL:       "https://marketplace.example.com",
	Domain:    "marketplace.example.com",
	StaticURL: "https://static.example.com",
	IconSizes: []int{16, 64},
}

func testTier() model.PriceTier {
	return model.PriceTier{
		ID:      1,
		Name:    "Tier 1",
		Default: model.Amount{Value: 99, Currency: "USD"},
		ByRegion: map[string]model.Amount{
			"br": {Value: 199, Currency: "BRL"},
			"de": {Value: 89, Currency: "EUR"},
		},
	}
}

func testWebApp() *model.WebApp {
	size := int64(4096)
	return &model.WebApp{
		ID:          1234,
		Name:        "Chess",
		Description: "<p>Play <b>chess</b></p>",
		IconType:    "image/png",
		IconHash:    "abc123",
		PriceTier:   testTier(),
		FileSize:    &size,
	}
}

func TestExternalID(t *testing.T) {
	assert.Equal(t, "marketplace.example.com:7", ExternalID(testSite, 7))
	assert.Equal(t, "marketplace-dev:7", ExternalID(config.Site{}, 7))
}

func TestAbsolutify(t *testing.T) {
	assert.Equal(t, "https://marketplace.example.com/a/b.png", Absolutify(testSite, "/a/b.png"))
	assert.Equal(t, "https://cdn.example.com/x.png", Absolutify(testSite, "https://cdn.example.com/x.png"))
}

func TestWebApp_Amount(t *testing.T) {
	p := NewWebApp(testWebApp(), testSite, &fakeAccounts{}, &fakePublicIDs{})

	for region, want := range testTier().ByRegion {
		got, ok := p.Amount(&model.Region{Slug: region})
		assert.True(t, ok)
		assert.Equal(t, want, got, region)
	}

	got, ok := p.Amount(&model.Region{Slug: "fr"})
	assert.True(t, ok)
	assert.Equal(t, model.Amount{Value: 99, Currency: "USD"}, got)

	got, ok = p.Amount(nil)
	assert.True(t, ok)
	assert.Equal(t, model.Amount{Value: 99, Currency: "USD"}, got)
}

func TestWebApp_Icons(t *testing.T) {
	p := NewWebApp(testWebApp(), testSite, &fakeAccounts{}, &fakePublicIDs{})

	assert.Equal(t, map[string]string{
		"16": "https://marketplace.example.com/img/uploads/addon_icons/1/1234-16.png?modified=abc123",
		"64": "https://marketplace.example.com/img/uploads/addon_icons/1/1234-64.png?modified=abc123",
	}, p.Icons())

	app := testWebApp()
	app.IconType = ""
	p = NewWebApp(app, testSite, &fakeAccounts{}, &fakePublicIDs{})
	assert.Equal(t, "https://static.example.com/img/hub/default-64.png", p.Icons()["64"])
}

func TestWebApp_DescriptionUntouched(t *testing.T) {
	p := NewWebApp(testWebApp(), testSite, &fakeAccounts{}, &fakePublicIDs{})
	assert.Equal(t, "<p>Play <b>chess</b></p>", p.Description())
}

func TestWebApp_ProductData(t *testing.T) {
	seller := uuid.New()
	publicID := uuid.New()
	accounts := &fakeAccounts{account: &model.PaymentAccount{SellerUUID: seller}}
	publicIDs := &fakePublicIDs{id: publicID}
	p := NewWebApp(testWebApp(), testSite, accounts, publicIDs)

	contrib := &model.Contribution{UUID: uuid.New()}
	data, err := p.ProductData(context.Background(), contrib)
	require.NoError(t, err)

	assert.Equal(t, "1234", data.Get("addon_id"))
	assert.Equal(t, "4096", data.Get("application_size"))
	assert.Equal(t, contrib.UUID.String(), data.Get("contrib_uuid"))
	assert.Equal(t, seller.String(), data.Get("seller_uuid"))
	assert.Equal(t, publicID.String(), data.Get("public_id"))
	assert.False(t, data.Has("amount"))
	assert.False(t, data.Has("inapp_id"))

	_, err = p.ProductData(context.Background(), contrib)
	require.NoError(t, err)
	assert.Equal(t, 1, accounts.calls, "payment account is looked up once per adapter")
	assert.Equal(t, 1, publicIDs.calls)
}

func TestWebApp_SellerUUID_NotFound(t *testing.T) {
	accounts := &fakeAccounts{err: errors.Wrap(db.ErrNotFound, "select payment account")}
	p := NewWebApp(testWebApp(), testSite, accounts, &fakePublicIDs{})

	_, err := p.SellerUUID(context.Background())
	assert.True(t, errors.Is(err, ErrPaymentAccountNotFound))

	_, err = p.ProductData(context.Background(), &model.Contribution{UUID: uuid.New()})
	assert.True(t, errors.Is(err, ErrPaymentAccountNotFound))
	assert.Equal(t, 2, accounts.calls, "failed lookups are not memoized")
}

func TestWebApp_SellerUUID_StoreError(t *testing.T) {
	boom := errors.New("connection refused")
	p := NewWebApp(testWebApp(), testSite, &fakeAccounts{err: boom}, &fakePublicIDs{})

	_, err := p.SellerUUID(context.Background())
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, ErrPaymentAccountNotFound))
}

func testInApp() *model.InApp {
	return &model.InApp{
		ID:      55,
		Name:    "Gold coins",
		LogoURL: "/media/inapp/55.png",
		WebApp:  *testWebApp(),
		Price:   testTier(),
	}
}

func TestInApp_View(t *testing.T) {
	p := NewInApp(testInApp(), testSite, &fakeAccounts{})

	assert.Equal(t, int64(55), p.ID())
	assert.Equal(t, int64(1234), p.AddonID())
	assert.Equal(t, "inapp.marketplace.example.com:55", p.ExternalID())
	assert.Equal(t, "Gold coins", p.Name())
	assert.Equal(t, "<p>Play <b>chess</b></p>", p.Description())
	assert.Equal(t, map[string]string{"64": "https://marketplace.example.com/media/inapp/55.png"}, p.Icons())
	assert.Nil(t, p.ApplicationSize())
}

func TestInApp_AmountUnavailable(t *testing.T) {
	p := NewInApp(testInApp(), testSite, &fakeAccounts{})

	for _, region := range []*model.Region{nil, {Slug: "br"}, {Slug: "de"}, {Slug: "us"}} {
		_, ok := p.Amount(region)
		assert.False(t, ok)
	}
}

func TestInApp_ProductData(t *testing.T) {
	seller := uuid.New()
	accounts := &fakeAccounts{account: &model.PaymentAccount{SellerUUID: seller}}
	p := NewInApp(testInApp(), testSite, accounts)

	contrib := &model.Contribution{UUID: uuid.New()}
	data, err := p.ProductData(context.Background(), contrib)
	require.NoError(t, err)

	assert.Equal(t, "1234", data.Get("addon_id"))
	assert.Equal(t, "55", data.Get("inapp_id"))
	assert.True(t, data.Has("application_size"))
	assert.Equal(t, "", data.Get("application_size"))
	assert.Equal(t, seller.String(), data.Get("seller_uuid"))
	assert.Equal(t, contrib.UUID.String(), data.Get("contrib_uuid"))
	assert.False(t, data.Has("amount"))
	assert.False(t, data.Has("public_id"))
}

func TestInApp_SellerUUID_NotFound(t *testing.T) {
	p := NewInApp(testInApp(), testSite, &fakeAccounts{err: db.ErrNotFound})

	_, err := p.ProductData(context.Background(), &model.Contribution{UUID: uuid.New()})
	assert.True(t, errors.Is(err, ErrPaymentAccountNotFound))
}
