package webpay

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"webpay-service/internal/config"
)

// Signer turns claims into a compact signed token.
type Signer interface {
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
}

// HMACSigner signs HS256 tokens with the secret shared with the payment processor.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (s *HMACSigner) Sign(_ context.Context, claims jwt.Claims) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("webpay secret is empty")
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign webpay jwt")
	}
	return signed, nil
}

// NewSigner picks the remote signing server when one is configured and signs locally otherwise.
func NewSigner(cfg config.Webpay) Signer {
	if cfg.SigningServerURL != "" {
		return NewRemoteSigner(cfg.SigningServerURL, time.Duration(cfg.SigningTimeoutMs)*time.Millisecond)
	}
	return NewHMACSigner(cfg.Secret)
}
