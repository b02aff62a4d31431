package webpay

import (
	"context"

	"github.com/google/uuid"

	"webpay-service/internal/config"
	"webpay-service/internal/model"
	"webpay-service/internal/product"
)

type fakeAccounts struct {
	account *model.PaymentAccount
	err     error
}

func (f *fakeAccounts) GetPaymentAccount(_ context.Context, _ int64) (*model.PaymentAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.account, nil
}

type fakePublicIDs struct {
	id uuid.UUID
}

func (f *fakePublicIDs) GetOrCreatePublicID(_ context.Context, _ int64) (uuid.UUID, error) {
	return f.id, nil
}

var (
	testWebpay = config.Webpay{
		Key:           "marketplace.example.com",
		Secret:        "s3cret",
		Aud:           "payments.example.com",
		Typ:           "mozilla/payments/pay/v1",
		PostbackTyp:   "mozilla/payments/pay/postback/v1",
		ChargebackTyp: "mozilla/payments/pay/chargeback/v1",
	}
	testSite = config.Site{
		URL:       "https://marketplace.example.com",
		Domain:    "marketplace.example.com",
		IconSizes: []int{64, 128},
	}
	testSeller = uuid.MustParse("6f1c3f9e-1d7a-4b8e-9d55-6a3b3e9c8f01")
)

func testTier() model.PriceTier {
	return model.PriceTier{
		ID:       3,
		Name:     "Tier 1",
		Default:  model.Amount{Value: 99, Currency: "USD"},
		ByRegion: map[string]model.Amount{"br": {Value: 199, Currency: "BRL"}},
	}
}

func testApp() *model.WebApp {
	size := int64(2048)
	return &model.WebApp{
		ID:          42,
		Name:        "Chess",
		Description: "<p>The <em>best</em> chess</p>",
		IconType:    "image/png",
		IconHash:    "h1",
		PriceTier:   testTier(),
		FileSize:    &size,
	}
}

func newWebAppProduct(accounts product.AccountStore) *product.WebApp {
	return product.NewWebApp(testApp(), testSite, accounts, &fakePublicIDs{id: uuid.New()})
}

func newInAppProduct(accounts product.AccountStore) *product.InApp {
	return product.NewInApp(&model.InApp{
		ID:      7,
		Name:    "Gold",
		LogoURL: "/media/inapp/7.png",
		WebApp:  *testApp(),
		Price:   testTier(),
	}, testSite, accounts)
}

func sellerAccounts() *fakeAccounts {
	return &fakeAccounts{account: &model.PaymentAccount{AddonID: 42, SellerUUID: testSeller}}
}
