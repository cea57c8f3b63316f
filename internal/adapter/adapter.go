// Package adapter defines the interface between the bot and the commerce backend.
// The state machine and the ops surface only see this interface; the Moltin
// implementation hides tokens, JSON shapes and image caching.
package adapter

import (
	"context"

	"shopbot/internal/model"
)

// Shop abstracts the catalog, cart, customer and checkout operations.
// Cart IDs are the chat user ID formatted as a decimal string.
//
// Every method may perform network I/O (including a token renewal) and
// returns backend failures unmodified; nothing is retried here.
type Shop interface {
	// ListProducts returns every product currently in the catalog.
	ListProducts(ctx context.Context) ([]model.Product, error)

	// GetProduct fetches a single product by ID.
	GetProduct(ctx context.Context, productID string) (*model.Product, error)

	// ProductImage returns a local file path for the product's main image,
	// or "" when the product has none.
	ProductImage(ctx context.Context, product *model.Product) (string, error)

	// CartItems lists the lines of a cart. An unknown cart is empty.
	CartItems(ctx context.Context, cartID string) ([]model.CartItem, error)

	// AddToCart adds quantity of a product. Whether quantities accumulate or
	// replace is decided by the backend.
	AddToCart(ctx context.Context, cartID, productID string, quantity int) error

	// RemoveFromCart deletes one line by its line-item ID.
	RemoveFromCart(ctx context.Context, cartID, itemID string) error

	// ClearCart removes every line. Clearing an empty cart succeeds.
	ClearCart(ctx context.Context, cartID string) error

	// CreateCustomer registers a customer and returns its ID.
	CreateCustomer(ctx context.Context, name, email string) (string, error)

	// Checkout turns the cart into an order for the customer.
	Checkout(ctx context.Context, cartID, customerID string, buyer model.Buyer) error
}
