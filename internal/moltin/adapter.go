package moltin

import (
	"context"
	"fmt"

	"shopbot/internal/adapter"
	"shopbot/internal/model"
)

// TokenSource hands out a bearer token that is valid at call time.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Adapter implements adapter.Shop on top of Client.
// It fetches a token before every backend call and converts backend JSON into model types.
type Adapter struct {
	client *Client
	tokens TokenSource
	images *ImageCache
}

// NewAdapter creates the Moltin-backed shop. images may be nil to disable product photos.
func NewAdapter(client *Client, tokens TokenSource, images *ImageCache) *Adapter {
	return &Adapter{client: client, tokens: tokens, images: images}
}

func (a *Adapter) token(ctx context.Context) (string, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("getting access token: %w", err)
	}
	return token, nil
}

// ListProducts returns the catalog in backend order.
func (a *Adapter) ListProducts(ctx context.Context) ([]model.Product, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}
	products, err := a.client.ListProducts(ctx, token)
	if err != nil {
		return nil, err
	}
	return ProductsToModel(products), nil
}

// GetProduct fetches one product.
func (a *Adapter) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}
	product, err := a.client.GetProduct(ctx, token, productID)
	if err != nil {
		return nil, err
	}
	return ProductToModel(product), nil
}

// ProductImage resolves the product's image through the disk cache.
func (a *Adapter) ProductImage(ctx context.Context, product *model.Product) (string, error) {
	if a.images == nil || product.ImageID == "" {
		return "", nil
	}
	token, err := a.token(ctx)
	if err != nil {
		return "", err
	}
	return a.images.Path(ctx, token, product)
}

// CartItems lists the cart lines.
func (a *Adapter) CartItems(ctx context.Context, cartID string) ([]model.CartItem, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}
	items, err := a.client.ListCartItems(ctx, token, cartID)
	if err != nil {
		return nil, err
	}
	return CartItemsToModel(items), nil
}

// AddToCart adds a product line.
func (a *Adapter) AddToCart(ctx context.Context, cartID, productID string, quantity int) error {
	if quantity <= 0 {
		return model.NewValidationError("quantity", "must be positive")
	}
	token, err := a.token(ctx)
	if err != nil {
		return err
	}
	_, err = a.client.AddCartItem(ctx, token, cartID, productID, quantity)
	return err
}

// RemoveFromCart deletes one line.
func (a *Adapter) RemoveFromCart(ctx context.Context, cartID, itemID string) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}
	return a.client.RemoveCartItem(ctx, token, cartID, itemID)
}

// ClearCart deletes all lines.
func (a *Adapter) ClearCart(ctx context.Context, cartID string) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}
	return a.client.ClearCart(ctx, token, cartID)
}

// CreateCustomer registers a customer.
func (a *Adapter) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	token, err := a.token(ctx)
	if err != nil {
		return "", err
	}
	return a.client.CreateCustomer(ctx, token, name, email)
}

// Checkout places the order.
func (a *Adapter) Checkout(ctx context.Context, cartID, customerID string, buyer model.Buyer) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}
	return a.client.Checkout(ctx, token, cartID, customerID, buyer)
}

var _ adapter.Shop = (*Adapter)(nil)
