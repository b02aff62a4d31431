package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"webpay-service/internal/model"
)

type ContributionRepository struct {
	pool *pgxpool.Pool
}

func NewContributionRepository(pool *pgxpool.Pool) *ContributionRepository {
	return &ContributionRepository{pool: pool}
}

func (r *ContributionRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const contributionColumns = `uuid, addon_id, amount, currency, price_tier_id, client_data, paykey, source,
	source_locale, status, user_id, transaction_id, created_at, updated_at`

// Create inserts a new contribution. Uniqueness of the uuid is left to the primary key.
func (r *ContributionRepository) Create(ctx context.Context, c *model.Contribution) (*model.Contribution, error) {
	var amount *int64
	var currency *string
	if c.Amount != nil {
		amount = &c.Amount.Value
		currency = &c.Amount.Currency
	}

	query := `INSERT INTO contribution (uuid, addon_id, amount, currency, price_tier_id, client_data, paykey, source,
	          source_locale, status, user_id)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, c.UUID, c.AddonID, amount, currency, c.PriceTierID, c.ClientData, c.PayKey,
		c.Source, c.Locale, string(c.Status), c.UserID).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "insert contribution %s", c.UUID)
	}
	return c, nil
}

func (r *ContributionRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*model.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contribution WHERE uuid = $1`
	c, err := scanContribution(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "select contribution")
	}
	return c, nil
}

func (r *ContributionRepository) SelectForUpdateByUUID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contribution WHERE uuid = $1 FOR UPDATE`
	c, err := scanContribution(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "select contribution for update")
	}
	return c, nil
}

// UpdateStatus moves a contribution to status inside a row lock. The transition must be
// allowed by model.CanTransition, otherwise model.ErrInvalidTransition is returned.
func (r *ContributionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ContributionStatus, txnID *string) (*model.Contribution, error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	c, err := r.SelectForUpdateByUUID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if !model.CanTransition(c.Status, status) {
		return nil, errors.Wrapf(model.ErrInvalidTransition, "%s -> %s", c.Status, status)
	}

	query := `UPDATE contribution SET status = $2, transaction_id = COALESCE($3, transaction_id), updated_at = $4
	          WHERE uuid = $1 RETURNING updated_at`
	if err := tx.QueryRow(ctx, query, id, string(status), txnID, time.Now().UTC()).Scan(&c.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, "update contribution status")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit status update")
	}

	c.Status = status
	if txnID != nil {
		c.TxnID = txnID
	}
	return c, nil
}

func scanContribution(row pgx.Row) (*model.Contribution, error) {
	var (
		c        model.Contribution
		amount   *int64
		currency *string
		status   string
	)
	err := row.Scan(&c.UUID, &c.AddonID, &amount, &currency, &c.PriceTierID, &c.ClientData, &c.PayKey, &c.Source,
		&c.Locale, &status, &c.UserID, &c.TxnID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if amount != nil {
		c.Amount = &model.Amount{Value: *amount}
		if currency != nil {
			c.Amount.Currency = *currency
		}
	}
	c.Status = model.ContributionStatus(status)
	return &c, nil
}
