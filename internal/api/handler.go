package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"webpay-service/internal/config"
	"webpay-service/internal/db"
	"webpay-service/internal/message"
	"webpay-service/internal/model"
	"webpay-service/internal/product"
	"webpay-service/internal/webpay"
)

const userIDHeader = "X-User-ID"

type Catalog interface {
	product.AccountStore
	product.PublicIDStore
	GetWebApp(ctx context.Context, id int64) (*model.WebApp, error)
	GetInApp(ctx context.Context, id int64) (*model.InApp, error)
}

type TokenIssuer interface {
	GetProductJWT(ctx context.Context, p product.Product, in webpay.Purchase) (*webpay.Result, error)
}

type ContributionReader interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (*model.Contribution, error)
}

type NoticePublisher interface {
	Publish(ctx context.Context, notice message.PaymentNotice) error
}

type Handler struct {
	catalog       Catalog
	issuer        TokenIssuer
	contributions ContributionReader
	notices       NoticePublisher
	webpay        config.Webpay
	site          config.Site
	logger        *slog.Logger
}

func NewHandler(catalog Catalog, issuer TokenIssuer, contributions ContributionReader, notices NoticePublisher,
	webpayCfg config.Webpay, site config.Site, logger *slog.Logger) *Handler {
	return &Handler{
		catalog:       catalog,
		issuer:        issuer,
		contributions: contributions,
		notices:       notices,
		webpay:        webpayCfg,
		site:          site,
		logger:        logger,
	}
}

type PrepareRequestDTO struct {
	App        int64  `json:"app"`
	Region     string `json:"region,omitempty"`
	Source     string `json:"source,omitempty"`
	Lang       string `json:"lang,omitempty"`
	ClientData string `json:"clientData,omitempty"`
}

type InAppPrepareRequestDTO struct {
	InApp      int64  `json:"inapp"`
	Source     string `json:"source,omitempty"`
	Lang       string `json:"lang,omitempty"`
	ClientData string `json:"clientData,omitempty"`
}

type StatusResponseDTO struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// POST /webpay/prepare
func (h *Handler) Prepare(w http.ResponseWriter, r *http.Request) {
	var req PrepareRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.App <= 0 {
		respondError(w, http.StatusBadRequest, "invalid JSON body or missing app")
		return
	}

	userID, err := userIDFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	app, err := h.catalog.GetWebApp(r.Context(), req.App)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	purchase := webpay.Purchase{
		UserID:     userID,
		Source:     optional(req.Source),
		Lang:       optional(req.Lang),
		ClientData: optional(req.ClientData),
	}
	if req.Region != "" {
		purchase.Region = &model.Region{Slug: strings.ToLower(req.Region)}
	}

	res, err := h.issuer.GetProductJWT(r.Context(), product.NewWebApp(app, h.site, h.catalog, h.catalog), purchase)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// POST /webpay/inapp/prepare
func (h *Handler) PrepareInApp(w http.ResponseWriter, r *http.Request) {
	var req InAppPrepareRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InApp <= 0 {
		respondError(w, http.StatusBadRequest, "invalid JSON body or missing inapp")
		return
	}

	inapp, err := h.catalog.GetInApp(r.Context(), req.InApp)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	// in-app purchases are anonymous and region-less
	res, err := h.issuer.GetProductJWT(r.Context(), product.NewInApp(inapp, h.site, h.catalog), webpay.Purchase{
		Source:     optional(req.Source),
		Lang:       optional(req.Lang),
		ClientData: optional(req.ClientData),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GET /webpay/status/{uuid}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid contribution uuid")
		return
	}

	c, err := h.contributions.GetByUUID(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponseDTO{Status: string(c.Status)})
}

// POST /webpay/postback
func (h *Handler) Postback(w http.ResponseWriter, r *http.Request) {
	h.notice(w, r, webpay.NoticePostback)
}

// POST /webpay/chargeback
func (h *Handler) Chargeback(w http.ResponseWriter, r *http.Request) {
	h.notice(w, r, webpay.NoticeChargeback)
}

func (h *Handler) notice(w http.ResponseWriter, r *http.Request, kind webpay.NoticeKind) {
	raw := r.PostFormValue("notice")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "missing notice")
		return
	}

	notice, err := webpay.ParseNotice(h.webpay, kind, raw)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	err = h.notices.Publish(r.Context(), message.PaymentNotice{
		ContribUUID:   notice.ContribUUID,
		Kind:          string(notice.Kind),
		TransactionID: notice.TransactionID,
		Reason:        notice.Reason,
		ReceivedAt:    time.Now().UTC(),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	// the processor expects the transaction id echoed back as acknowledgement
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(notice.TransactionID))
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, product.ErrPaymentAccountNotFound):
		h.logger.WarnContext(r.Context(), "No payment account configured", "error", err)
		respondError(w, http.StatusNotFound, "no payment account for this product")
	case errors.Is(err, webpay.ErrInvalidNotice):
		h.logger.WarnContext(r.Context(), "Rejected payment notice", "error", err)
		respondError(w, http.StatusBadRequest, "invalid notice")
	default:
		h.logger.ErrorContext(r.Context(), "Request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func userIDFromRequest(r *http.Request) (*int64, error) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.Errorf("invalid %s header", userIDHeader)
	}
	return &id, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg})
}
