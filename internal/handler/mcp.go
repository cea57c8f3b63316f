// MCP transport for the ops surface using the official MCP Go SDK.
// Exposes catalog and cart operations as MCP tools; carts are addressed by
// the Telegram user ID, the same way the bot addresses them.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"shopbot/internal/model"
)

// === MCP Tool Input/Output Types ===

// ListProductsInput is the input schema for list_products.
type ListProductsInput struct{}

// ProductsOutput lists catalog products.
type ProductsOutput struct {
	Products []model.Product `json:"products"`
}

// GetProductInput is the input schema for get_product.
type GetProductInput struct {
	ID string `json:"id" jsonschema:"product ID,required"`
}

// ProductOutput wraps one product.
type ProductOutput struct {
	Product *model.Product `json:"product"`
}

// CartInput addresses a cart by the Telegram user ID that owns it.
type CartInput struct {
	UserID int64 `json:"user_id" jsonschema:"Telegram user ID owning the cart,required"`
}

// AddToCartInput is the input schema for add_to_cart.
type AddToCartInput struct {
	UserID    int64  `json:"user_id" jsonschema:"Telegram user ID owning the cart,required"`
	ProductID string `json:"product_id" jsonschema:"product ID,required"`
	Quantity  int    `json:"quantity" jsonschema:"kilograms to add,required"`
}

// RemoveCartItemInput is the input schema for remove_cart_item.
type RemoveCartItemInput struct {
	UserID int64  `json:"user_id" jsonschema:"Telegram user ID owning the cart,required"`
	ItemID string `json:"item_id" jsonschema:"cart line-item ID,required"`
}

// CartOutput is the state of a cart after the tool ran.
type CartOutput struct {
	Items []model.CartItem `json:"items"`
	Total string           `json:"total"`
}

// NewMCPServer creates an MCP server with the catalog and cart tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "shopbot",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Shop bot operations. Browse the catalog and inspect or fix " +
				"the cart of a Telegram user. Prices are in minor units.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_products",
		Description: "List every product in the catalog.",
	}, h.mcpListProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_product",
		Description: "Get one product by ID.",
	}, h.mcpGetProduct)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Show the cart of a Telegram user.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a product to a user's cart. The backend merges quantities for a product already in the cart.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_cart_item",
		Description: "Remove one line from a user's cart.",
	}, h.mcpRemoveCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cart",
		Description: "Remove every line from a user's cart.",
	}, h.mcpClearCart)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListProductsInput,
) (*mcp.CallToolResult, ProductsOutput, error) {
	products, err := h.shop.ListProducts(ctx)
	if err != nil {
		return nil, ProductsOutput{}, h.mcpError(err)
	}
	if products == nil {
		products = []model.Product{}
	}
	return nil, ProductsOutput{Products: products}, nil
}

func (h *Handler) mcpGetProduct(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetProductInput,
) (*mcp.CallToolResult, ProductOutput, error) {
	if input.ID == "" {
		return nil, ProductOutput{}, fmt.Errorf("id is required")
	}
	product, err := h.shop.GetProduct(ctx, input.ID)
	if err != nil {
		return nil, ProductOutput{}, h.mcpError(err)
	}
	return nil, ProductOutput{Product: product}, nil
}

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if input.UserID == 0 {
		return nil, CartOutput{}, fmt.Errorf("user_id is required")
	}
	return h.cartOutput(ctx, input.UserID)
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if input.UserID == 0 || input.ProductID == "" {
		return nil, CartOutput{}, fmt.Errorf("user_id and product_id are required")
	}
	if err := h.shop.AddToCart(ctx, cartID(input.UserID), input.ProductID, input.Quantity); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return h.cartOutput(ctx, input.UserID)
}

func (h *Handler) mcpRemoveCartItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveCartItemInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if input.UserID == 0 || input.ItemID == "" {
		return nil, CartOutput{}, fmt.Errorf("user_id and item_id are required")
	}
	if err := h.shop.RemoveFromCart(ctx, cartID(input.UserID), input.ItemID); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return h.cartOutput(ctx, input.UserID)
}

func (h *Handler) mcpClearCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if input.UserID == 0 {
		return nil, CartOutput{}, fmt.Errorf("user_id is required")
	}
	if err := h.shop.ClearCart(ctx, cartID(input.UserID)); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return h.cartOutput(ctx, input.UserID)
}

func (h *Handler) cartOutput(ctx context.Context, userID int64) (*mcp.CallToolResult, CartOutput, error) {
	items, err := h.shop.CartItems(ctx, cartID(userID))
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	if items == nil {
		items = []model.CartItem{}
	}
	return nil, CartOutput{Items: items, Total: model.FormatPrice(model.CartTotal(items))}, nil
}

func cartID(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// mcpError converts shop errors to MCP-friendly errors.
// Not-found and validation errors are passed on; anything else is logged and hidden.
func (h *Handler) mcpError(err error) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Errorf("invalid_input: %s", verr.Error())
	case errors.Is(err, model.ErrNotFound):
		return fmt.Errorf("not_found: %v", err)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
