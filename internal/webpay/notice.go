package webpay

import (
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"webpay-service/internal/config"
)

var ErrInvalidNotice = errors.New("invalid payment notice")

type NoticeKind string

const (
	NoticePostback   NoticeKind = "postback"
	NoticeChargeback NoticeKind = "chargeback"
	NoticeFailure    NoticeKind = "failure"
)

type Response struct {
	TransactionID string `json:"transactionID"`
	Reason        string `json:"reason,omitempty"`
}

// NoticeClaims is what the payment processor posts back: the original request plus its
// response.
type NoticeClaims struct {
	Envelope
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

// Notice is a verified postback or chargeback.
type Notice struct {
	Kind          NoticeKind
	ContribUUID   uuid.UUID
	TransactionID string
	Reason        string
}

// NewNoticeClaims builds the notice the payment processor sends back for req. It is the
// mirror image of the purchase claims: issuer and audience are swapped.
func NewNoticeClaims(cfg config.Webpay, kind NoticeKind, req Request, resp Response, now time.Time) NoticeClaims {
	issuedAt := now.UTC().Unix()
	return NoticeClaims{
		Envelope: Envelope{
			Issuer:    cfg.Aud,
			Type:      noticeTyp(cfg, kind),
			Audience:  cfg.Key,
			IssuedAt:  issuedAt,
			ExpiresAt: issuedAt + TokenLifetime,
		},
		Request:  req,
		Response: resp,
	}
}

func noticeTyp(cfg config.Webpay, kind NoticeKind) string {
	if kind == NoticeChargeback {
		return cfg.ChargebackTyp
	}
	return cfg.PostbackTyp
}

// ParseNotice verifies a notice signed by the payment processor and extracts the
// contribution it refers to. The expected token type depends on kind.
func ParseNotice(cfg config.Webpay, kind NoticeKind, raw string) (*Notice, error) {
	if cfg.Secret == "" {
		return nil, errors.Wrap(ErrInvalidNotice, "no shared secret to verify with")
	}

	claims := &NoticeClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(cfg.Key),
		jwt.WithIssuer(cfg.Aud),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidNotice, "verify %s: %v", kind, err)
	}

	if claims.Type != noticeTyp(cfg, kind) {
		return nil, errors.Wrapf(ErrInvalidNotice, "unexpected typ %q", claims.Type)
	}
	if claims.Response.TransactionID == "" {
		return nil, errors.Wrap(ErrInvalidNotice, "missing transactionID")
	}

	data, err := url.ParseQuery(claims.Request.ProductData)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidNotice, "productData: %v", err)
	}
	contribUUID, err := uuid.Parse(data.Get("contrib_uuid"))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidNotice, "contrib_uuid: %v", err)
	}

	// failed payments arrive on the postback URL flagged by their reason
	if kind == NoticePostback && claims.Response.Reason == string(NoticeFailure) {
		kind = NoticeFailure
	}

	return &Notice{
		Kind:          kind,
		ContribUUID:   contribUUID,
		TransactionID: claims.Response.TransactionID,
		Reason:        claims.Response.Reason,
	}, nil
}
