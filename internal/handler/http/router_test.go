package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/repository/sqlite"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgmw "github.com/utafrali/storefront/pkg/middleware"
)

// fakeCatalog serves a tiny catalog API. failing switches every endpoint
// to HTTP 500.
type fakeCatalog struct {
	mu      sync.Mutex
	failing bool
	queries []string
}

func (f *fakeCatalog) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeCatalog) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *fakeCatalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.Path+"?"+r.URL.RawQuery)
	failing := f.failing
	f.mu.Unlock()

	if failing {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/category":
		_, _ = io.WriteString(w, `[{"id":1,"name":"Lamps"}]`)
	case "/product":
		_, _ = io.WriteString(w, `{"items":[{"id":1,"name":"Lamp","price":10,"img":"lamp.png","category_id":1},{"id":2,"name":"Mug","price":5,"img":"mug.png","category_id":1}],"total_pages":3,"page":`+r.URL.Query().Get("page")+`}`)
	case "/product/1":
		_, _ = io.WriteString(w, `{"id":1,"name":"Lamp","price":10,"img":"lamp.png","category_id":1}`)
	case "/product/2":
		_, _ = io.WriteString(w, `{"id":2,"name":"Mug","price":5,"img":"mug.png","category_id":1}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{}`)
	}
}

type fixture struct {
	router  http.Handler
	catalog *fakeCatalog
	server  *httptest.Server
	cart    *service.CartStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fake := &fakeCatalog{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "storefront.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	storage, err := sqlite.NewStorage(ctx, db)
	require.NoError(t, err)

	cart := service.NewCartStore(ctx, storage, nil, logger)
	client := catalog.NewClient(srv.URL, "secret", httpclient.New(httpclient.DefaultConfig()), logger)

	ctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	router := NewRouter(ctx, NewStorefrontHandler(client, cart, logger), health.NewHandler(), logger, Options{
		CORS:                pkgmw.DefaultCORSConfig(),
		CatalogCacheSeconds: 30,
	})

	return &fixture{router: router, catalog: fake, server: srv, cart: cart}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env.Data
}

// ============================================================================
// Route table
// ============================================================================

func TestHome_ListsProducts(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/?page=2&category=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=30", rr.Header().Get("Cache-Control"))

	view := decodeData[HomeView](t, rr)
	assert.Len(t, view.Categories, 1)
	assert.Len(t, view.Products, 2)
	assert.Equal(t, 3, view.TotalPages)
	assert.Equal(t, 2, view.CurrentPage)
	assert.True(t, view.HasNext)
	assert.True(t, view.HasPrev)
	assert.Equal(t, 1, view.CategoryID)
	assert.Empty(t, view.Error)

	assert.Contains(t, f.catalog.seen()[1], "category_id=1")
}

func TestHome_CatalogFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.catalog.setFailing(true)

	rr := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)

	view := decodeData[HomeView](t, rr)
	assert.Empty(t, view.Products)
	assert.Empty(t, view.Categories)
	assert.Equal(t, 0, view.TotalPages)
	assert.Equal(t, 1, view.CurrentPage)
	assert.Equal(t, "HTTP error! status: 500", view.Error)
}

func TestProductDetail(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/product/1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	view := decodeData[ProductDetailView](t, rr)
	require.NotNil(t, view.Product)
	assert.Equal(t, "Lamp", view.Product.Name)
	assert.Equal(t, 0, view.InCartQuantity)
}

func TestProductDetail_FetchFailure(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/product/99", "")
	require.Equal(t, http.StatusOK, rr.Code)

	view := decodeData[ProductDetailView](t, rr)
	assert.Nil(t, view.Product)
	assert.Equal(t, "HTTP error! status: 404", view.Error)
}

func TestProductDetail_InvalidID(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/product/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_PARAMETER")
}

func TestCatchAll_RedirectsHome(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/nope", "/product", "/product/1/extra", "/checkout"} {
		rr := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusFound, rr.Code, path)
		assert.Equal(t, "/", rr.Header().Get("Location"), path)
	}
}

func TestHealthLive(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

// ============================================================================
// Cart actions
// ============================================================================

func TestCart_AddItemTwice(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/cart/items", `{"product_id":1}`)
	rr := f.do(t, http.MethodPost, "/cart/items", `{"product_id":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	view := decodeData[CartView](t, rr)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.Equal(t, 2, view.ItemCount)
	assert.Equal(t, "20", view.TotalPrice.String())
	assert.False(t, view.IsEmpty)
}

func TestCart_AddItemValidation(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/cart/items", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "VALIDATION_ERROR")

	rr = f.do(t, http.MethodPost, "/cart/items", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_INPUT")
}

func TestCart_AddItemCatalogFailure(t *testing.T) {
	f := newFixture(t)
	f.catalog.setFailing(true)

	rr := f.do(t, http.MethodPost, "/cart/items", `{"product_id":1}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.True(t, f.cart.IsEmpty())
}

func TestCart_AddItemUnknownProduct(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/cart/items", `{"product_id":99}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "NOT_FOUND")
	assert.True(t, f.cart.IsEmpty())
}

func TestCatalogUnreachable_HidesAPIKey(t *testing.T) {
	f := newFixture(t)
	f.server.Close()

	home := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, home.Code)
	view := decodeData[HomeView](t, home)
	assert.NotEmpty(t, view.Error)
	assert.NotContains(t, home.Body.String(), "secret")

	add := f.do(t, http.MethodPost, "/cart/items", `{"product_id":1}`)
	assert.Equal(t, http.StatusBadGateway, add.Code)
	assert.NotContains(t, add.Body.String(), "secret")
}

func TestCart_UpdateAndRemove(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/cart/items", `{"product_id":1}`)
	f.do(t, http.MethodPost, "/cart/items", `{"product_id":2}`)

	rr := f.do(t, http.MethodPut, "/cart/items/2", `{"quantity":4}`)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decodeData[CartView](t, rr)
	assert.Equal(t, 5, view.ItemCount)
	assert.Equal(t, "30", view.TotalPrice.String())

	rr = f.do(t, http.MethodPut, "/cart/items/2", `{"quantity":0}`)
	view = decodeData[CartView](t, rr)
	assert.Len(t, view.Items, 1)

	rr = f.do(t, http.MethodDelete, "/cart/items/1", "")
	view = decodeData[CartView](t, rr)
	assert.True(t, view.IsEmpty)
	assert.NotNil(t, view.Items)
}

func TestCart_UpdateRequiresQuantity(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/cart/items", `{"product_id":1}`)

	rr := f.do(t, http.MethodPut, "/cart/items/1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 1, f.cart.ItemCount())
}

func TestCart_RemoveUnknownIsNoop(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/cart/items", `{"product_id":1}`)

	rr := f.do(t, http.MethodDelete, "/cart/items/42", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeData[CartView](t, rr).ItemCount)
}

func TestCart_ClearAndView(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/cart/items", `{"product_id":1}`)

	rr := f.do(t, http.MethodDelete, "/cart", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeData[CartView](t, rr).IsEmpty)

	rr = f.do(t, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, rr.Code)
	view := decodeData[CartView](t, rr)
	assert.True(t, view.IsEmpty)
	assert.Equal(t, 0, view.ItemCount)
}

func TestProductDetail_ShowsCartQuantity(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/cart/items", `{"product_id":1}`)
	f.do(t, http.MethodPost, "/cart/items", `{"product_id":1}`)

	view := decodeData[ProductDetailView](t, f.do(t, http.MethodGet, "/product/1", ""))
	assert.Equal(t, 2, view.InCartQuantity)

	home := decodeData[HomeView](t, f.do(t, http.MethodGet, "/", ""))
	assert.Equal(t, 2, home.CartCount)
}
