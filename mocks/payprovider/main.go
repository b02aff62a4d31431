// Command payprovider simulates the payment processor: it accepts purchase tokens issued by
// the webpay service and posts signed notices back to the URLs they carry.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"webpay-service/internal/config"
	"webpay-service/internal/logging"
	"webpay-service/internal/webpay"
)

const (
	errorRate   = 0.5
	contentType = "application/json"
)

type PayRequest struct {
	WebpayJWT string `json:"webpayJWT"`
}

type PayResponse struct {
	TransactionID string `json:"transactionID"`
	Kind          string `json:"kind"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type provider struct {
	cfg    config.Webpay
	signer webpay.Signer
	client *http.Client
	logger *slog.Logger
}

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	cfg := config.MustLoadConfig(configPath)
	logger := logging.GetLogger(cfg.Logs)

	p := &provider{
		cfg:    cfg.Webpay,
		signer: webpay.NewHMACSigner(cfg.Webpay.Secret),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /always-success", p.handle(func() webpay.NoticeKind { return webpay.NoticePostback }))
	mux.HandleFunc("POST /always-fail", p.handle(func() webpay.NoticeKind { return webpay.NoticeFailure }))
	mux.HandleFunc("POST /always-refund", p.handle(func() webpay.NoticeKind { return webpay.NoticeChargeback }))
	mux.HandleFunc("POST /random-fail", p.handle(func() webpay.NoticeKind {
		if rand.Float64() < errorRate {
			return webpay.NoticeFailure
		}
		return webpay.NoticePostback
	}))

	port := os.Getenv("PAYPROVIDER_PORT")
	if port == "" {
		port = "8085"
	}
	logger.Info("Starting payment provider mock", "port", port)
	if err := http.ListenAndServe(":"+port, loggingMiddleware(logger, mux)); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (p *provider) handle(outcome func() webpay.NoticeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WebpayJWT == "" {
			respond(w, http.StatusBadRequest, ErrorResponse{Error: "missing webpayJWT"})
			return
		}

		claims, err := webpay.ParseClaims(p.cfg, req.WebpayJWT)
		if err != nil {
			p.logger.WarnContext(r.Context(), "Rejected purchase token", "error", err)
			respond(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		kind := outcome()
		txnID := "webpay:" + uuid.NewString()
		if err := p.notify(r.Context(), claims.Request, kind, txnID); err != nil {
			p.logger.ErrorContext(r.Context(), "Error sending notice", "error", err, "kind", kind)
			respond(w, http.StatusBadGateway, ErrorResponse{Error: err.Error()})
			return
		}
		respond(w, http.StatusOK, PayResponse{TransactionID: txnID, Kind: string(kind)})
	}
}

// notify signs a notice for req and posts it to the matching URL. The receiver must echo
// the transaction id back.
func (p *provider) notify(ctx context.Context, req webpay.Request, kind webpay.NoticeKind, txnID string) error {
	resp := webpay.Response{TransactionID: txnID}
	target := req.PostbackURL
	switch kind {
	case webpay.NoticeFailure:
		resp.Reason = string(webpay.NoticeFailure)
	case webpay.NoticeChargeback:
		resp.Reason = "refund"
		target = req.ChargebackURL
	}

	token, err := p.signer.Sign(ctx, webpay.NewNoticeClaims(p.cfg, kind, req, resp, time.Now()))
	if err != nil {
		return errors.Wrap(err, "sign notice")
	}

	form := url.Values{"notice": {token}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "build notice request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "post notice")
	}
	defer httpResp.Body.Close()

	buf := new(strings.Builder)
	if _, err := io.Copy(buf, httpResp.Body); err != nil {
		return errors.Wrap(err, "read notice response")
	}
	if httpResp.StatusCode != http.StatusOK || buf.String() != txnID {
		return errors.Errorf("notice not acknowledged: status %d body %q", httpResp.StatusCode, buf.String())
	}
	return nil
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
