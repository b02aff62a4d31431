package webpay

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"webpay-service/internal/config"
	"webpay-service/internal/model"
	"webpay-service/internal/product"
)

// TokenLifetime is fixed: every purchase token expires one hour after it is issued.
const TokenLifetime = 3600

const (
	PostbackPath   = "/webpay/postback"
	ChargebackPath = "/webpay/chargeback"
	statusPrefix   = "/webpay/status/"
)

// StatusPath is where the state of a contribution can be polled.
func StatusPath(contribUUID uuid.UUID) string {
	return statusPrefix + contribUUID.String()
}

// Envelope carries the top level fields shared by purchase requests and processor notices.
// It implements jwt.Claims so that golang-jwt can validate exp and aud.
type Envelope struct {
	Issuer    string `json:"iss"`
	Type      string `json:"typ"`
	Audience  string `json:"aud"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (e Envelope) GetExpirationTime() (*jwt.NumericDate, error) { return numericDate(e.ExpiresAt), nil }
func (e Envelope) GetIssuedAt() (*jwt.NumericDate, error)       { return numericDate(e.IssuedAt), nil }
func (e Envelope) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (e Envelope) GetIssuer() (string, error)                   { return e.Issuer, nil }
func (e Envelope) GetSubject() (string, error)                  { return "", nil }
func (e Envelope) GetAudience() (jwt.ClaimStrings, error) {
	if e.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{e.Audience}, nil
}

func numericDate(sec int64) *jwt.NumericDate {
	if sec == 0 {
		return nil
	}
	return jwt.NewNumericDate(time.Unix(sec, 0))
}

type Request struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Icons         map[string]string `json:"icons"`
	Description   string            `json:"description"`
	PricePoint    string            `json:"pricePoint"`
	ProductData   string            `json:"productData"`
	ChargebackURL string            `json:"chargebackURL"`
	PostbackURL   string            `json:"postbackURL"`
}

// Claims is the purchase request handed to the payment processor.
type Claims struct {
	Envelope
	Request Request `json:"request"`
}

// BuildClaims assembles the purchase claims for contribution c. Only iat depends on now;
// exp is always iat + TokenLifetime.
func BuildClaims(ctx context.Context, cfg config.Webpay, site config.Site, p product.Product, c *model.Contribution, now time.Time) (Claims, error) {
	data, err := p.ProductData(ctx, c)
	if err != nil {
		return Claims{}, err
	}

	issuedAt := now.UTC().Unix()
	return Claims{
		Envelope: Envelope{
			Issuer:    cfg.Key,
			Type:      cfg.Typ,
			Audience:  cfg.Aud,
			IssuedAt:  issuedAt,
			ExpiresAt: issuedAt + TokenLifetime,
		},
		Request: Request{
			ID:            p.ExternalID(),
			Name:          p.Name(),
			Icons:         p.Icons(),
			Description:   StripTags(p.Description()),
			PricePoint:    p.Price().Name,
			ProductData:   data.Encode(),
			ChargebackURL: product.Absolutify(site, ChargebackPath),
			PostbackURL:   product.Absolutify(site, PostbackPath),
		},
	}, nil
}

// statusURL is the absolute polling URL for a contribution.
func statusURL(site config.Site, contribUUID uuid.UUID) string {
	return product.Absolutify(site, StatusPath(contribUUID))
}

// ParseClaims verifies a purchase token the way the payment processor does: HS256 with
// the shared secret, addressed to cfg.Aud by cfg.Key.
func ParseClaims(cfg config.Webpay, raw string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("no shared secret to verify with")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(cfg.Aud),
		jwt.WithIssuer(cfg.Key),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "verify purchase token")
	}
	if claims.Type != cfg.Typ {
		return nil, errors.Errorf("unexpected typ %q", claims.Type)
	}
	return claims, nil
}
