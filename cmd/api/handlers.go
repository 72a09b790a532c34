package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/receipt"
	"github.com/safar/storefront/internal/store"
	"go.uber.org/zap"
)

type server struct {
	db       *sql.DB
	carts    *cart.Service
	checkout *checkout.Service
	logger   *zap.Logger
}

func (s *server) mountStorefront(r chi.Router) {
	r.Get("/products/{id}", s.handleGetProduct)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", s.handleGetCart)
		r.Delete("/", s.handleClearCart)
		r.Get("/pricing", s.handleCartPricing)
		r.Post("/items", s.handleAddItem)
		r.Patch("/items/{lineID}", s.handleUpdateItem)
		r.Delete("/items/{lineID}", s.handleRemoveItem)
	})

	r.Post("/checkout", s.handleCheckout)

	r.Get("/orders", s.handleListOrders)
	r.Get("/orders/{id}", s.handleGetOrder)
	r.Get("/orders/{id}/receipt", s.handleGetReceipt)

	r.Get("/addresses", s.handleListAddresses)
	r.Post("/addresses", s.handleCreateAddress)
}

func (s *server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	product, err := store.GetProduct(r.Context(), s.db, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	c, err := s.carts.Get(r.Context(), actor)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}

func (s *server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.carts.Clear(r.Context(), actorFrom(r)); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCartPricing(w http.ResponseWriter, r *http.Request) {
	breakdown, err := s.checkout.ComputeCartPromotions(r.Context(), actorFrom(r))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, breakdown)
}

func (s *server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req cart.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := s.carts.Add(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

func (s *server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}

	var req cart.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	item, err := s.carts.Update(r.Context(), actorFrom(r), lineID, req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if item == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondJSON(w, http.StatusOK, item)
}

func (s *server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}

	if err := s.carts.Remove(r.Context(), actorFrom(r), lineID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkoutRequest struct {
	CouponCode string          `json:"coupon_code"`
	AddressID  int64           `json:"address_id"`
	Address    *models.Address `json:"address"`
}

type checkoutResponse struct {
	Order          *models.Order    `json:"order"`
	Receipt        *receipt.Receipt `json:"receipt,omitempty"`
	CouponRejected string           `json:"coupon_rejected,omitempty"`
}

func (s *server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := s.checkout.Checkout(r.Context(), checkout.Request{
		Actor:      actorFrom(r),
		CouponCode: req.CouponCode,
		AddressID:  req.AddressID,
		Address:    req.Address,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, checkoutResponse{
		Order:          result.Order,
		Receipt:        result.Receipt,
		CouponRejected: string(result.CouponRejected),
	})
}

func (s *server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := s.checkout.ListOrders(r.Context(), actorFrom(r), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := s.checkout.GetOrder(r.Context(), actorFrom(r), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	rcpt, err := s.checkout.GetReceipt(r.Context(), actorFrom(r), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(rcpt.Text))
		return
	}
	respondJSON(w, http.StatusOK, rcpt)
}

func (s *server) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := store.ListAddresses(r.Context(), s.db, actorFrom(r), page, pageSize)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *server) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	var req models.Address
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if missing := req.MissingFields(); len(missing) > 0 {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "invalid_address",
			"missing": missing,
		})
		return
	}
	req.ActorID = actorFrom(r)

	address, err := store.CreateAddress(r.Context(), s.db, req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, address)
}

func actorFrom(r *http.Request) models.ActorID {
	actor, _ := identity.ActorFromContext(r.Context())
	return actor
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid "+param)
		return 0, false
	}
	return id, true
}

// statusFor maps domain errors onto HTTP statuses and stable error codes.
func statusFor(err error) (int, string) {
	var ce *checkout.Error
	switch {
	case errors.As(err, &ce):
		if checkout.IsValidation(err) {
			return http.StatusUnprocessableEntity, string(ce.Reason)
		}
		return http.StatusConflict, string(ce.Reason)
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidActor):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, store.ErrMalformedCursor):
		return http.StatusBadRequest, "invalid_cursor"
	case cart.IsNotFound(err),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrAddressNotFound),
		errors.Is(err, database.ErrPromotionNotFound),
		errors.Is(err, database.ErrCouponNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, checkout.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, database.ErrOptimisticLockFailed), errors.Is(err, database.ErrDuplicate):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondError(w, status, code, "Internal server error")
		return
	}
	respondError(w, status, code, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": code, "message": message})
}
