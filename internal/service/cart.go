package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/validator"
)

// CartStore owns the shopper's cart. Every content change is written
// through to storage under repository.CartKey before the call returns.
// Storage failures are logged and counted; the in-memory cart stays
// authoritative. All methods are safe for concurrent use.
type CartStore struct {
	mu      sync.Mutex
	cart    domain.Cart
	storage repository.Storage
	events  event.Publisher
	logger  *slog.Logger
}

// NewCartStore creates a store and rehydrates it from storage. A stored
// value that cannot be decoded leaves the cart empty; the error is logged.
func NewCartStore(ctx context.Context, storage repository.Storage, events event.Publisher, logger *slog.Logger) *CartStore {
	if events == nil {
		events = event.NoopPublisher{}
	}
	s := &CartStore{
		cart:    domain.Cart{Items: []domain.CartLineItem{}},
		storage: storage,
		events:  events,
		logger:  logger,
	}
	_ = s.LoadFromStorage(ctx)
	return s
}

// AddItem adds one unit of product. A product already in the cart has its
// quantity incremented and keeps the name, price and image captured when
// it was first added.
func (s *CartStore) AddItem(ctx context.Context, product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.cart.FindItemIndex(product.ID); i >= 0 {
		s.cart.Items[i].Quantity++
	} else {
		s.cart.Items = append(s.cart.Items, domain.NewLineItem(product))
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.Int("product_id", product.ID),
		slog.Int("quantity", s.cart.QuantityOf(product.ID)),
	)
	s.persist(ctx)
}

// RemoveItem deletes the line item for id. Unknown ids are ignored and
// nothing is written.
func (s *CartStore) RemoveItem(ctx context.Context, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(ctx, id)
}

func (s *CartStore) removeLocked(ctx context.Context, id int) {
	i := s.cart.FindItemIndex(id)
	if i < 0 {
		return
	}
	s.cart.Items = append(s.cart.Items[:i], s.cart.Items[i+1:]...)

	s.logger.InfoContext(ctx, "item removed from cart", slog.Int("product_id", id))
	s.persist(ctx)
}

// UpdateQuantity sets the quantity for id. A quantity below 1 removes the
// item. Unknown ids are ignored.
func (s *CartStore) UpdateQuantity(ctx context.Context, id, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cart.FindItemIndex(id)
	if i < 0 {
		return
	}
	if quantity < 1 {
		s.removeLocked(ctx, id)
		return
	}
	s.cart.Items[i].Quantity = quantity

	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.Int("product_id", id),
		slog.Int("quantity", quantity),
	)
	s.persist(ctx)
}

// ClearCart empties the cart and deletes the stored key.
func (s *CartStore) ClearCart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.Items = []domain.CartLineItem{}
	s.observe()

	if err := s.storage.Delete(ctx, repository.CartKey); err != nil {
		storageErrors.WithLabelValues("delete").Inc()
		s.logger.ErrorContext(ctx, "failed to delete stored cart",
			slog.String("error", err.Error()),
		)
	}
	if err := s.events.PublishCartCleared(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared")
}

// LoadFromStorage replaces the cart with the stored one. An absent key
// leaves the cart untouched. A stored value that is not a valid list of
// line items resets the cart to empty and is returned as an ErrDecode.
func (s *CartStore) LoadFromStorage(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.storage.Get(ctx, repository.CartKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		storageErrors.WithLabelValues("get").Inc()
		s.logger.ErrorContext(ctx, "failed to read stored cart",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("load cart: %w", err)
	}

	items, err := decodeItems(raw)
	if err != nil {
		s.cart.Items = []domain.CartLineItem{}
		s.observe()
		s.logger.ErrorContext(ctx, "stored cart is malformed, starting empty",
			slog.String("error", err.Error()),
		)
		return apperrors.Decode("cart", err)
	}

	s.cart.Items = items
	s.observe()
	s.logger.DebugContext(ctx, "cart loaded from storage", slog.Int("line_items", len(items)))
	return nil
}

func decodeItems(raw string) ([]domain.CartLineItem, error) {
	var items []domain.CartLineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	if err := validator.ValidateEach(items); err != nil {
		return nil, err
	}

	seen := make(map[int]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("duplicate line item for product %d", item.ID)
		}
		seen[item.ID] = struct{}{}
	}

	if items == nil {
		items = []domain.CartLineItem{}
	}
	return items, nil
}

// persist writes the cart to storage and announces the change. Callers
// hold s.mu.
func (s *CartStore) persist(ctx context.Context) {
	s.observe()

	if err := s.save(ctx); err != nil {
		storageErrors.WithLabelValues("set").Inc()
		s.logger.ErrorContext(ctx, "failed to persist cart",
			slog.String("error", err.Error()),
		)
	}
	if err := s.events.PublishCartUpdated(ctx, &s.cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartStore) save(ctx context.Context) error {
	data, err := json.Marshal(s.cart.Items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.storage.Set(ctx, repository.CartKey, string(data)); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *CartStore) observe() {
	cartItems.Set(float64(s.cart.ItemCount()))
	cartLines.Set(float64(len(s.cart.Items)))
}

// Items returns a copy of the line items in insertion order.
func (s *CartStore) Items() []domain.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.CartLineItem, len(s.cart.Items))
	copy(items, s.cart.Items)
	return items
}

// TotalPrice returns Σ price × quantity.
func (s *CartStore) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.TotalPrice()
}

// ItemCount returns Σ quantity.
func (s *CartStore) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.ItemCount()
}

// IsEmpty reports whether the cart has no line items.
func (s *CartStore) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.IsEmpty()
}

// QuantityOf returns the quantity held for product id, or 0.
func (s *CartStore) QuantityOf(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.QuantityOf(id)
}

// Snapshot returns a consistent copy of the cart for rendering.
func (s *CartStore) Snapshot() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.CartLineItem, len(s.cart.Items))
	copy(items, s.cart.Items)
	return domain.Cart{Items: items}
}
