package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// AddItemRequest is the JSON body for POST /cart/items.
type AddItemRequest struct {
	ProductID int `json:"product_id" validate:"required,gt=0"`
}

// UpdateQuantityRequest is the JSON body for PUT /cart/items/{id}. A
// quantity below 1 removes the item.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// AddItem handles POST /cart/items. The product is looked up in the catalog
// so the cart snapshots its current name, price and image.
func (h *StorefrontHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	product, err := h.catalog.NewSession().GetProduct(r.Context(), req.ProductID)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			err = apperrors.NotFound("product", strconv.Itoa(req.ProductID))
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cart.AddItem(r.Context(), *product)
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Snapshot()))
}

// UpdateQuantity handles PUT /cart/items/{id}.
func (h *StorefrontHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseIntID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cart.UpdateQuantity(r.Context(), id, *req.Quantity)
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Snapshot()))
}

// RemoveItem handles DELETE /cart/items/{id}.
func (h *StorefrontHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseIntID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	h.cart.RemoveItem(r.Context(), id)
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Snapshot()))
}

// ClearCart handles DELETE /cart.
func (h *StorefrontHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.cart.ClearCart(r.Context())
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Snapshot()))
}
