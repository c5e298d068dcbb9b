package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ============================================================================
// Test doubles
// ============================================================================

// memStorage is an in-memory repository.Storage that counts writes.
type memStorage struct {
	mu      sync.Mutex
	data    map[string]string
	sets    int
	deletes int
	setErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string]string)}
}

func (m *memStorage) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", apperrors.NotFound("key", key)
	}
	return v, nil
}

func (m *memStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = value
	return nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, key)
	return nil
}

func (m *memStorage) Ping(context.Context) error { return nil }

func (m *memStorage) value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// mockPublisher is a testify mock for event.Publisher.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *mockPublisher) PublishCartCleared(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, storage repository.Storage) *CartStore {
	t.Helper()
	return NewCartStore(context.Background(), storage, nil, discardLogger())
}

func product(id int, price int64) domain.Product {
	return domain.Product{
		ID:    id,
		Name:  "Product",
		Price: decimal.NewFromInt(price),
		Img:   "p.png",
	}
}

// ============================================================================
// AddItem
// ============================================================================

func TestAddItem_SameProductTwice(t *testing.T) {
	storage := newMemStorage()
	s := newTestStore(t, storage)
	ctx := context.Background()

	s.AddItem(ctx, product(1, 10))
	s.AddItem(ctx, product(1, 10))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 2, storage.sets)
}

func TestAddItem_StoresNumericPrice(t *testing.T) {
	storage := newMemStorage()
	s := newTestStore(t, storage)

	s.AddItem(context.Background(), product(1, 10))

	stored, ok := storage.value(repository.CartKey)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":1,"name":"Product","price":10,"image":"p.png","quantity":1}]`, stored)
}

func TestAddItem_KeepsOriginalSnapshot(t *testing.T) {
	s := newTestStore(t, newMemStorage())
	ctx := context.Background()

	s.AddItem(ctx, product(1, 10))
	repriced := product(1, 99)
	repriced.Name = "Renamed"
	s.AddItem(ctx, repriced)

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Product", items[0].Name)
	assert.True(t, decimal.NewFromInt(10).Equal(items[0].Price))
	assert.Equal(t, "p.png", items[0].Image)
}

func TestAddItem_PreservesInsertionOrder(t *testing.T) {
	s := newTestStore(t, newMemStorage())
	ctx := context.Background()

	s.AddItem(ctx, product(3, 1))
	s.AddItem(ctx, product(1, 1))
	s.AddItem(ctx, product(2, 1))
	s.AddItem(ctx, product(1, 1))

	items := s.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []int{3, 1, 2}, []int{items[0].ID, items[1].ID, items[2].ID})
}

// ============================================================================
// UpdateQuantity / RemoveItem
// ============================================================================

func TestUpdateQuantity_ZeroRemoves(t *testing.T) {
	s := newTestStore(t, newMemStorage())
	ctx := context.Background()
	s.AddItem(ctx, product(1, 10))

	s.UpdateQuantity(ctx, 1, 0)

	assert.True(t, s.IsEmpty())
}

func TestUpdateQuantity_NegativeRemoves(t *testing.T) {
	s := newTestStore(t, newMemStorage())
	ctx := context.Background()
	s.AddItem(ctx, product(1, 10))
	s.AddItem(ctx, product(2, 10))

	s.UpdateQuantity(ctx, 1, -3)

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].ID)
}

func TestUpdateQuantity_SetsAndPersists(t *testing.T) {
	storage := newMemStorage()
	s := newTestStore(t, storage)
	ctx := context.Background()
	s.AddItem(ctx, product(1, 10))

	s.UpdateQuantity(ctx, 1, 5)

	assert.Equal(t, 5, s.QuantityOf(1))
	stored, ok := storage.value(repository.CartKey)
	require.True(t, ok)
	assert.Contains(t, stored, `"quantity":5`)
}

func TestUpdateQuantity_UnknownIDIsNoop(t *testing.T) {
	storage := newMemStorage()
	s := newTestStore(t, storage)
	ctx := context.Background()
	s.AddItem(ctx, product(1, 10))
	writes := storage.sets

	s.UpdateQuantity(ctx, 42, 3)

	assert.Equal(t, writes, storage.sets)
	assert.Equal(t, 1, s.ItemCount())
}

func TestRemoveItem_NonMemberWritesNothing(t *testing.T) {
	storage := newMemStorage()
	s := newTestStore(t, storage)
	ctx := context.Background()
	s.AddItem(ctx, product(1, 10))
	before, _ := storage.value(repository.CartKey)
	writes := storage.sets

	s.RemoveItem(ctx, 99)

	after, _ := storage.value(repository.CartKey)
	assert.Equal(t, before, after)
	assert.Equal(t, writes, storage.sets)
	assert.Equal(t, 1, len(s.Items()))
}

func TestRemoveItem_PersistsRemaining(t *testing.T) {
	storage := newMemStorage()
	s := newTestStore(t, storage)
	ctx := context.Background()
	s.AddItem(ctx, product(1, 10))
	s.AddItem(ctx, product(2, 5))

	s.RemoveItem(ctx, 1)

	stored, _ := storage.value(repository.CartKey)
	assert.NotContains(t, stored, `"id":1,`)
	assert.Contains(t, stored, `"id":2,`)
}

// ============================================================================
// Totals
// ============================================================================

func TestTotals(t *testing.T) {
	s := newTestStore(t, newMemStorage())
	ctx := context.Background()

	s.AddItem(ctx, product(1, 10))
	s.AddItem(ctx, product(1, 10))
	s.AddItem(ctx, product(2, 5))

	assert.True(t, decimal.NewFromInt(25).Equal(s.TotalPrice()), "got %s", s.TotalPrice())
	assert.Equal(t, 3, s.ItemCount())
	assert.False(t, s.IsEmpty())
}

func TestTotals_Empty(t *testing.T) {
	s := newTestStore(t, newMemStorage())

	assert.True(t, s.TotalPrice().IsZero())
	assert.Equal(t, 0, s.ItemCount())
	assert.True(t, s.IsEmpty())
	assert.NotNil(t, s.Items())
}

// ============================================================================
// ClearCart / LoadFromStorage
// ============================================================================

func TestClearCart_ThenLoad(t *testing.T) {
	storage := newMemStorage()
	s := newTestStore(t, storage)
	ctx := context.Background()
	s.AddItem(ctx, product(1, 10))

	s.ClearCart(ctx)
	require.NoError(t, s.LoadFromStorage(ctx))

	assert.True(t, s.IsEmpty())
	_, ok := storage.value(repository.CartKey)
	assert.False(t, ok)
	assert.Equal(t, 1, storage.deletes)
}

func TestRoundTrip_FreshStore(t *testing.T) {
	storage := newMemStorage()
	ctx := context.Background()

	first := newTestStore(t, storage)
	first.AddItem(ctx, product(3, 7))
	first.AddItem(ctx, product(1, 10))
	first.UpdateQuantity(ctx, 1, 4)

	second := newTestStore(t, storage)

	want, got := first.Items(), second.Items()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Image, got[i].Image)
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.True(t, want[i].Price.Equal(got[i].Price))
	}
	assert.True(t, first.TotalPrice().Equal(second.TotalPrice()))
}

func TestLoadFromStorage_AbsentKeyKeepsState(t *testing.T) {
	storage := newMemStorage()
	s := newTestStore(t, storage)
	ctx := context.Background()
	s.AddItem(ctx, product(1, 10))
	require.NoError(t, storage.Delete(ctx, repository.CartKey))

	require.NoError(t, s.LoadFromStorage(ctx))
	assert.Equal(t, 1, s.ItemCount())
}

func TestLoadFromStorage_MalformedResets(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"invalid json", `{not json`},
		{"object instead of list", `{"id":1}`},
		{"zero quantity", `[{"id":1,"name":"x","price":1,"image":"","quantity":0}]`},
		{"missing id", `[{"name":"x","price":1,"image":"","quantity":1}]`},
		{"duplicate ids", `[{"id":1,"price":1,"quantity":1},{"id":1,"price":1,"quantity":2}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newMemStorage()
			s := newTestStore(t, storage)
			ctx := context.Background()
			s.AddItem(ctx, product(9, 1))

			storage.data[repository.CartKey] = tt.value
			err := s.LoadFromStorage(ctx)

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrDecode))
			assert.True(t, s.IsEmpty())
		})
	}
}

func TestNewCartStore_MalformedIsLogged(t *testing.T) {
	storage := newMemStorage()
	storage.data[repository.CartKey] = `garbage`

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := NewCartStore(context.Background(), storage, nil, logger)

	assert.True(t, s.IsEmpty())
	assert.Contains(t, buf.String(), "stored cart is malformed")
}

func TestLoadFromStorage_NullIsEmpty(t *testing.T) {
	storage := newMemStorage()
	storage.data[repository.CartKey] = `null`

	s := newTestStore(t, storage)
	assert.True(t, s.IsEmpty())
	assert.NotNil(t, s.Items())
}

// ============================================================================
// Failure handling
// ============================================================================

func TestStorageFailure_KeepsInMemoryState(t *testing.T) {
	storage := newMemStorage()
	storage.setErr = errors.New("disk full")

	var buf bytes.Buffer
	s := NewCartStore(context.Background(), storage, nil, slog.New(slog.NewJSONHandler(&buf, nil)))
	s.AddItem(context.Background(), product(1, 10))

	assert.Equal(t, 1, s.ItemCount())
	assert.Contains(t, buf.String(), "failed to persist cart")
	assert.Contains(t, buf.String(), "disk full")
}

func TestEvents_PublishedPerMutation(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("PublishCartUpdated", mock.Anything, mock.AnythingOfType("*domain.Cart")).Return(nil).Twice()
	pub.On("PublishCartCleared", mock.Anything).Return(nil).Once()

	s := NewCartStore(context.Background(), newMemStorage(), pub, discardLogger())
	ctx := context.Background()

	s.AddItem(ctx, product(1, 10))
	s.RemoveItem(ctx, 7) // no-op, no event
	s.UpdateQuantity(ctx, 1, 3)
	s.ClearCart(ctx)

	pub.AssertExpectations(t)
}

func TestEvents_FailureIsLogged(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("PublishCartUpdated", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	var buf bytes.Buffer
	s := NewCartStore(context.Background(), newMemStorage(), pub, slog.New(slog.NewJSONHandler(&buf, nil)))
	s.AddItem(context.Background(), product(1, 10))

	assert.Equal(t, 1, s.ItemCount())
	assert.Contains(t, buf.String(), "failed to publish cart.updated event")
}

func TestConcurrentAdds(t *testing.T) {
	s := newTestStore(t, newMemStorage())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddItem(ctx, product(1, 2))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.QuantityOf(1))
	assert.Equal(t, "100", s.TotalPrice().String())
}
