package webpay

import (
	"context"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"webpay-service/internal/config"
	"webpay-service/internal/logging"
	"webpay-service/internal/model"
	"webpay-service/internal/product"
)

var (
	jwtSuccessCounter       = metrics.GetOrCreateCounter(`webpay_jwt_total{result="success"}`)
	jwtSellerMissingCounter = metrics.GetOrCreateCounter(`webpay_jwt_total{result="seller_not_found"}`)
	jwtSellerErrorCounter   = metrics.GetOrCreateCounter(`webpay_jwt_total{result="seller_lookup_failed"}`)
	jwtStoreErrorCounter    = metrics.GetOrCreateCounter(`webpay_jwt_total{result="store_failed"}`)
	jwtClaimsErrorCounter   = metrics.GetOrCreateCounter(`webpay_jwt_total{result="claims_failed"}`)
	jwtSignErrorCounter     = metrics.GetOrCreateCounter(`webpay_jwt_total{result="sign_failed"}`)

	jwtDurationHistogram = metrics.GetOrCreateHistogram(`webpay_jwt_duration_milliseconds`)
)

type ContributionStore interface {
	Create(ctx context.Context, c *model.Contribution) (*model.Contribution, error)
}

// Purchase describes who buys and from where. Every field is optional.
type Purchase struct {
	UserID     *int64
	Region     *model.Region
	Source     *string
	Lang       *string
	ClientData *string
}

type Result struct {
	WebpayJWT        string `json:"webpayJWT"`
	ContribStatusURL string `json:"contribStatusURL"`
}

// Issuer records a pending contribution for a product and returns a signed purchase token for it.
type Issuer struct {
	store  ContributionStore
	signer Signer
	cfg    config.Webpay
	site   config.Site
	logger *slog.Logger
	now    func() time.Time
}

func NewIssuer(store ContributionStore, signer Signer, cfg config.Webpay, site config.Site, logger *slog.Logger) *Issuer {
	return &Issuer{
		store:  store,
		signer: signer,
		cfg:    cfg,
		site:   site,
		logger: logger,
		now:    time.Now,
	}
}

// GetProductJWT never returns a token without a stored contribution behind it. A signing
// failure after the insert leaves the contribution pending.
func (i *Issuer) GetProductJWT(ctx context.Context, p product.Product, in Purchase) (*Result, error) {
	startTime := time.Now()
	defer func() {
		jwtDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	// resolve the seller before writing anything so a missing account leaves no pending row
	if _, err := p.SellerUUID(ctx); err != nil {
		if errors.Is(err, product.ErrPaymentAccountNotFound) {
			jwtSellerMissingCounter.Inc()
		} else {
			i.logger.ErrorContext(ctx, "Error looking up seller", "error", err)
			jwtSellerErrorCounter.Inc()
		}
		return nil, err
	}

	contribution := &model.Contribution{
		UUID:        uuid.New(),
		AddonID:     p.AddonID(),
		PriceTierID: p.Price().ID,
		ClientData:  in.ClientData,
		Source:      in.Source,
		Locale:      in.Lang,
		Status:      model.StatusPending,
		UserID:      in.UserID,
	}
	if amount, ok := p.Amount(in.Region); ok {
		contribution.Amount = &amount
	}

	ctx = logging.AppendCtx(ctx, slog.String("contribUuid", contribution.UUID.String()))

	if _, err := i.store.Create(ctx, contribution); err != nil {
		i.logger.ErrorContext(ctx, "Error storing contribution", "error", err)
		jwtStoreErrorCounter.Inc()
		return nil, errors.Wrap(err, "record contribution")
	}
	i.logger.DebugContext(ctx, "Stored contribution")

	var userID any
	if in.UserID != nil {
		userID = *in.UserID
	}
	i.logger.InfoContext(ctx, "Starting purchase", "productId", p.ID(), "userId", userID)

	claims, err := BuildClaims(ctx, i.cfg, i.site, p, contribution, i.now())
	if err != nil {
		i.logger.ErrorContext(ctx, "Error building claims", "error", err)
		jwtClaimsErrorCounter.Inc()
		return nil, err
	}

	token, err := i.signer.Sign(ctx, claims)
	if err != nil {
		i.logger.ErrorContext(ctx, "Error signing webpay jwt", "error", err)
		jwtSignErrorCounter.Inc()
		return nil, err
	}

	i.logger.DebugContext(ctx, "Prepared webpay jwt", "productId", p.ID())
	jwtSuccessCounter.Inc()

	return &Result{
		WebpayJWT:        token,
		ContribStatusURL: statusURL(i.site, contribution.UUID),
	}, nil
}
