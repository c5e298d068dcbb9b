package repository

import (
	"context"
)

// CartKey is the storage key holding the serialized cart.
const CartKey = "cart"

// Storage is a durable string key/value store. Get returns an error
// wrapping apperrors.ErrNotFound when the key is absent.
type Storage interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) (string, error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
