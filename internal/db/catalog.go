package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"webpay-service/internal/model"
)

// CatalogRepository reads the purchasable products: web apps, in-app products, their price
// tiers and payment accounts.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetWebApp(ctx context.Context, id int64) (*model.WebApp, error) {
	query := `SELECT id, name, description, icon_type, icon_hash, public_id, price_tier_id, file_size
	          FROM webapp WHERE id = $1`

	var app model.WebApp
	var tierID int64
	err := r.pool.QueryRow(ctx, query, id).Scan(&app.ID, &app.Name, &app.Description, &app.IconType, &app.IconHash,
		&app.PublicID, &tierID, &app.FileSize)
	if err != nil {
		return nil, notFound(err, "select webapp")
	}

	tier, err := r.GetPriceTier(ctx, tierID)
	if err != nil {
		return nil, err
	}
	app.PriceTier = *tier
	return &app, nil
}

func (r *CatalogRepository) GetInApp(ctx context.Context, id int64) (*model.InApp, error) {
	query := `SELECT id, webapp_id, name, logo_url, price_tier_id FROM inapp_product WHERE id = $1`

	var inapp model.InApp
	var appID, tierID int64
	err := r.pool.QueryRow(ctx, query, id).Scan(&inapp.ID, &appID, &inapp.Name, &inapp.LogoURL, &tierID)
	if err != nil {
		return nil, notFound(err, "select inapp product")
	}

	app, err := r.GetWebApp(ctx, appID)
	if err != nil {
		return nil, err
	}
	inapp.WebApp = *app

	tier, err := r.GetPriceTier(ctx, tierID)
	if err != nil {
		return nil, err
	}
	inapp.Price = *tier
	return &inapp, nil
}

func (r *CatalogRepository) GetPriceTier(ctx context.Context, id int64) (*model.PriceTier, error) {
	var tier model.PriceTier
	err := r.pool.QueryRow(ctx, `SELECT id, name, default_amount, default_currency FROM price_tier WHERE id = $1`, id).
		Scan(&tier.ID, &tier.Name, &tier.Default.Value, &tier.Default.Currency)
	if err != nil {
		return nil, notFound(err, "select price tier")
	}

	rows, err := r.pool.Query(ctx, `SELECT region, amount, currency FROM price_tier_region WHERE price_tier_id = $1`, id)
	if err != nil {
		return nil, errors.Wrap(err, "select price tier regions")
	}
	defer rows.Close()

	tier.ByRegion = make(map[string]model.Amount)
	for rows.Next() {
		var region string
		var amount model.Amount
		if err := rows.Scan(&region, &amount.Value, &amount.Currency); err != nil {
			return nil, errors.Wrap(err, "scan price tier region")
		}
		tier.ByRegion[region] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate price tier regions")
	}
	return &tier, nil
}

// GetPaymentAccount returns ErrNotFound when the app has no payment account configured.
func (r *CatalogRepository) GetPaymentAccount(ctx context.Context, addonID int64) (*model.PaymentAccount, error) {
	var account model.PaymentAccount
	err := r.pool.QueryRow(ctx, `SELECT id, webapp_id, seller_uuid FROM payment_account WHERE webapp_id = $1`, addonID).
		Scan(&account.ID, &account.AddonID, &account.SellerUUID)
	if err != nil {
		return nil, notFound(err, "select payment account")
	}
	return &account, nil
}

// GetOrCreatePublicID assigns a public id to the app on first use and returns the stored one
// afterwards.
func (r *CatalogRepository) GetOrCreatePublicID(ctx context.Context, addonID int64) (uuid.UUID, error) {
	var publicID uuid.UUID
	query := `UPDATE webapp SET public_id = COALESCE(public_id, $2) WHERE id = $1 RETURNING public_id`
	if err := r.pool.QueryRow(ctx, query, addonID, uuid.New()).Scan(&publicID); err != nil {
		return uuid.Nil, notFound(err, "get or create public id")
	}
	return publicID, nil
}
