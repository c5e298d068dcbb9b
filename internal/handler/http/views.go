package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/pagination"
)

// StorefrontHandler serves the storefront views and cart actions.
type StorefrontHandler struct {
	catalog *catalog.Client
	cart    *service.CartStore
	logger  *slog.Logger
}

// NewStorefrontHandler creates a handler over the shared catalog client and
// the process-wide cart store.
func NewStorefrontHandler(catalogClient *catalog.Client, cart *service.CartStore, logger *slog.Logger) *StorefrontHandler {
	return &StorefrontHandler{
		catalog: catalogClient,
		cart:    cart,
		logger:  logger,
	}
}

// --- View models ---

// HomeView is the product listing page.
type HomeView struct {
	Categories  []domain.Category `json:"categories"`
	Products    []domain.Product  `json:"products"`
	TotalPages  int               `json:"total_pages"`
	CurrentPage int               `json:"current_page"`
	HasNext     bool              `json:"has_next"`
	HasPrev     bool              `json:"has_prev"`
	CategoryID  int               `json:"category_id"`
	CartCount   int               `json:"cart_count"`
	Error       string            `json:"error,omitempty"`
}

// ProductDetailView is the single product page.
type ProductDetailView struct {
	Product        *domain.Product `json:"product"`
	InCartQuantity int             `json:"in_cart_quantity"`
	Error          string          `json:"error,omitempty"`
}

// CartView is the cart page and the response to every cart action.
type CartView struct {
	Items      []domain.CartLineItem `json:"items"`
	TotalPrice decimal.Decimal       `json:"total_price"`
	ItemCount  int                   `json:"item_count"`
	IsEmpty    bool                  `json:"is_empty"`
}

func newCartView(cart domain.Cart) CartView {
	return CartView{
		Items:      cart.Items,
		TotalPrice: cart.TotalPrice(),
		ItemCount:  cart.ItemCount(),
		IsEmpty:    cart.IsEmpty(),
	}
}

// --- Views ---

// Home handles GET /. Catalog failures degrade to empty lists plus an
// error message; the status stays 200.
func (h *StorefrontHandler) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := pagination.FromRequest(r)
	session := h.catalog.NewSession()

	categories, _ := session.ListCategories(ctx)
	categoriesErr := session.Err()

	page, _ := session.ListProducts(ctx, params.Page, params.CategoryID)
	productsErr := session.Err()

	window := pagination.NewWindow(page.CurrentPage, page.TotalPages)
	view := HomeView{
		Categories:  categories,
		Products:    page.Products,
		TotalPages:  window.TotalPages,
		CurrentPage: window.CurrentPage,
		HasNext:     window.HasNext,
		HasPrev:     window.HasPrev,
		CategoryID:  params.CategoryID,
		CartCount:   h.cart.ItemCount(),
		Error:       firstNonEmpty(productsErr, categoriesErr),
	}

	httputil.WriteData(w, http.StatusOK, view)
}

// ProductDetail handles GET /product/{id}. A failed fetch renders a null
// product with the error message.
func (h *StorefrontHandler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseIntID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	session := h.catalog.NewSession()
	product, _ := session.GetProduct(r.Context(), id)

	httputil.WriteData(w, http.StatusOK, ProductDetailView{
		Product:        product,
		InCartQuantity: h.cart.QuantityOf(id),
		Error:          session.Err(),
	})
}

// Cart handles GET /cart.
func (h *StorefrontHandler) Cart(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Snapshot()))
}

// NotFound redirects every unmatched path to the home view.
func NotFound(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
