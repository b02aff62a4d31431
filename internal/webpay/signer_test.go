package webpay

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpay-service/internal/config"
	"webpay-service/internal/model"
)

func TestHMACSigner_Sign(t *testing.T) {
	claims, err := BuildClaims(context.Background(), testWebpay, testSite, newWebAppProduct(sellerAccounts()),
		&model.Contribution{UUID: uuid.New()}, time.Now())
	require.NoError(t, err)

	token, err := NewHMACSigner(testWebpay.Secret).Sign(context.Background(), claims)
	require.NoError(t, err)

	parsed := &Claims{}
	_, err = jwt.ParseWithClaims(token, parsed, func(*jwt.Token) (any, error) {
		return []byte(testWebpay.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithAudience(testWebpay.Aud))
	require.NoError(t, err)
	assert.Equal(t, claims, *parsed)
}

func TestHMACSigner_EmptySecret(t *testing.T) {
	_, err := NewHMACSigner("").Sign(context.Background(), Claims{})
	assert.Error(t, err)
}

func TestNewSigner(t *testing.T) {
	assert.IsType(t, &HMACSigner{}, NewSigner(testWebpay))

	remote := testWebpay
	remote.SigningServerURL = "http://signer.example.com/sign"
	assert.IsType(t, &RemoteSigner{}, NewSigner(remote))
}

func TestRemoteSigner_Sign(t *testing.T) {
	tests := []struct {
		name           string
		mockResponse   func()
		expectedToken  string
		expectedErrMsg string
	}{
		{
			name: "Success",
			mockResponse: func() {
				gock.New("http://signer.example.com").
					Post("/sign").
					MatchType("json").
					Reply(200).
					JSON(map[string]string{"jwt": "header.payload.signature"})
			},
			expectedToken: "header.payload.signature",
		},
		{
			name: "Error",
			mockResponse: func() {
				gock.New("http://signer.example.com").
					Post("/sign").
					Reply(500).
					JSON(map[string]string{"error": "internal server error"})
			},
			expectedErrMsg: "500",
		},
		{
			name: "EmptyToken",
			mockResponse: func() {
				gock.New("http://signer.example.com").
					Post("/sign").
					Reply(200).
					JSON(map[string]string{})
			},
			expectedErrMsg: "empty token",
		},
		{
			name: "Timeout",
			mockResponse: func() {
				gock.New("http://signer.example.com").
					Post("/sign").
					Reply(200).
					Delay(500 * time.Millisecond)
			},
			expectedErrMsg: "Client.Timeout exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			tt.mockResponse()

			signer := NewRemoteSigner("http://signer.example.com/sign", 100*time.Millisecond)
			claims := Claims{Envelope: Envelope{Issuer: "marketplace.example.com"}}

			token, err := signer.Sign(context.Background(), claims)
			if tt.expectedErrMsg != "" {
				assert.ErrorContains(t, err, tt.expectedErrMsg)
				assert.Empty(t, token)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedToken, token)
			}
			assert.True(t, gock.IsDone())
		})
	}
}

func signNotice(t *testing.T, cfg config.Webpay, kind NoticeKind, productData string, response Response) string {
	t.Helper()
	claims := NewNoticeClaims(cfg, kind, Request{ProductData: productData}, response, time.Now())
	token, err := NewHMACSigner(cfg.Secret).Sign(context.Background(), claims)
	require.NoError(t, err)
	return token
}
