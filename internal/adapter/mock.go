package adapter

import (
	"context"

	"shopbot/internal/model"
)

// Mock implements Shop for testing.
// Each method can be configured via function fields; unset fields return zero values.
type Mock struct {
	ListProductsFunc   func(ctx context.Context) ([]model.Product, error)
	GetProductFunc     func(ctx context.Context, productID string) (*model.Product, error)
	ProductImageFunc   func(ctx context.Context, product *model.Product) (string, error)
	CartItemsFunc      func(ctx context.Context, cartID string) ([]model.CartItem, error)
	AddToCartFunc      func(ctx context.Context, cartID, productID string, quantity int) error
	RemoveFromCartFunc func(ctx context.Context, cartID, itemID string) error
	ClearCartFunc      func(ctx context.Context, cartID string) error
	CreateCustomerFunc func(ctx context.Context, name, email string) (string, error)
	CheckoutFunc       func(ctx context.Context, cartID, customerID string, buyer model.Buyer) error
}

// ListProducts calls the configured ListProductsFunc or returns no products.
func (m *Mock) ListProducts(ctx context.Context) ([]model.Product, error) {
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx)
	}
	return nil, nil
}

// GetProduct calls the configured GetProductFunc or returns a not found error.
func (m *Mock) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, productID)
	}
	return nil, model.NewRemoteAPIError(404, []byte(`{"errors":[{"title":"Not Found"}]}`))
}

// ProductImage calls the configured ProductImageFunc or reports no image.
func (m *Mock) ProductImage(ctx context.Context, product *model.Product) (string, error) {
	if m.ProductImageFunc != nil {
		return m.ProductImageFunc(ctx, product)
	}
	return "", nil
}

// CartItems calls the configured CartItemsFunc or returns an empty cart.
func (m *Mock) CartItems(ctx context.Context, cartID string) ([]model.CartItem, error) {
	if m.CartItemsFunc != nil {
		return m.CartItemsFunc(ctx, cartID)
	}
	return nil, nil
}

// AddToCart calls the configured AddToCartFunc.
func (m *Mock) AddToCart(ctx context.Context, cartID, productID string, quantity int) error {
	if m.AddToCartFunc != nil {
		return m.AddToCartFunc(ctx, cartID, productID, quantity)
	}
	return nil
}

// RemoveFromCart calls the configured RemoveFromCartFunc.
func (m *Mock) RemoveFromCart(ctx context.Context, cartID, itemID string) error {
	if m.RemoveFromCartFunc != nil {
		return m.RemoveFromCartFunc(ctx, cartID, itemID)
	}
	return nil
}

// ClearCart calls the configured ClearCartFunc.
func (m *Mock) ClearCart(ctx context.Context, cartID string) error {
	if m.ClearCartFunc != nil {
		return m.ClearCartFunc(ctx, cartID)
	}
	return nil
}

// CreateCustomer calls the configured CreateCustomerFunc or returns a fixed ID.
func (m *Mock) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, name, email)
	}
	return "mock-customer", nil
}

// Checkout calls the configured CheckoutFunc.
func (m *Mock) Checkout(ctx context.Context, cartID, customerID string, buyer model.Buyer) error {
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, cartID, customerID, buyer)
	}
	return nil
}

// Verify Mock implements Shop interface at compile time.
var _ Shop = (*Mock)(nil)
