package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// mountAdmin registers the back-office routes used to maintain the catalog,
// discounts and fulfilment queue.
func (s *server) mountAdmin(r chi.Router) {
	r.Post("/products", s.handleCreateProduct)
	r.Post("/promotions", s.handleCreatePromotion)
	r.Delete("/promotions/{id}", s.handleDeletePromotion)
	r.Post("/coupons", s.handleCreateCoupon)
	r.Put("/carts/{actorID}/tax", s.handleSetCartTax)
	r.Post("/orders/claim", s.handleClaimOrder)
	r.Post("/orders/{id}/status", s.handleUpdateOrderStatus)
}

type createProductRequest struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

func (s *server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.SKU == "" || req.Name == "" || !req.Price.IsPositive() || req.StockQuantity < 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "sku, name, a positive price and a non-negative stock are required")
		return
	}

	product, err := store.CreateProduct(r.Context(), s.db, req.SKU, req.Name, req.Description, req.Price, req.StockQuantity)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	s.logger.Info("product created", zap.Int64("product_id", product.ID), zap.String("sku", product.SKU))
	respondJSON(w, http.StatusCreated, product)
}

func (s *server) handleCreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req models.Promotion
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Name == "" || len(req.ProductIDs) == 0 || !req.EndsAt.After(req.StartsAt) {
		respondError(w, http.StatusBadRequest, "invalid_request", "name, product_ids and a window with ends_at after starts_at are required")
		return
	}
	if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		respondError(w, http.StatusBadRequest, "invalid_request", "discount_percent must be between 0 and 100")
		return
	}

	promotion, err := store.CreatePromotion(r.Context(), s.db, req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, promotion)
}

func (s *server) handleDeletePromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := store.DeletePromotion(r.Context(), s.db, id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.Coupon
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if models.CanonicalCouponCode(req.Code) == "" || !req.Kind.Valid() || req.Value.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_request", "code, a kind of percentage or fixed_amount and a non-negative value are required")
		return
	}
	if req.UsageLimit != nil && *req.UsageLimit < 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "usage_limit must not be negative")
		return
	}
	req.UsageCount = 0

	created, err := store.CreateCoupon(r.Context(), s.db, req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

type setTaxRequest struct {
	// Tax is the externally computed amount; null restores the flat rate.
	Tax *decimal.Decimal `json:"tax"`
}

func (s *server) handleSetCartTax(w http.ResponseWriter, r *http.Request) {
	actor, err := models.ParseActorID(chi.URLParam(r, "actorID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req setTaxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Tax != nil && req.Tax.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_request", "tax must not be negative")
		return
	}

	if err := s.carts.SetTax(r.Context(), actor, req.Tax); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

func (s *server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	order, err := s.checkout.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *server) handleClaimOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.checkout.ClaimNextPending(r.Context())
	if errors.Is(err, database.ErrOrderNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}
