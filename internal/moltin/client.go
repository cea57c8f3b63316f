package moltin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"shopbot/internal/model"
)

// =============================================================================
// MOLTIN API CLIENT
// =============================================================================
//
// One method per backend capability, one HTTP request per method. Every call
// takes the bearer token explicitly; the client keeps no auth state, which
// lets internal/token own the token lifecycle.
//
// Errors:
//   - non-2xx from the token endpoint with 400/401/403 → *model.AuthError
//   - any other non-2xx                                → *model.RemoteAPIError
//   - network failures                                 → wraps model.ErrUpstream
// =============================================================================

const (
	// DefaultBaseURL is the public Moltin API host.
	DefaultBaseURL = "https://api.moltin.com"

	// DefaultAPIVersion selects the /v2 resource paths.
	DefaultAPIVersion = "v2"

	pathOAuthToken = "/oauth/access_token"

	userAgent = "shopbot/1.0"

	// maxImageBytes bounds product image downloads.
	maxImageBytes = 10 << 20

	// addressPlaceholder fills every geographic checkout field. Addresses are
	// not collected by the bot, so the order carries no real fulfillment address.
	addressPlaceholder = "."
)

// Config holds client settings.
type Config struct {
	BaseURL    string       // default DefaultBaseURL
	APIVersion string       // semver, e.g. "v2" or "v2.0.0"; only the major is used
	ClientID   string       // OAuth client ID for the implicit grant
	HTTPClient *http.Client // default: 30s timeout, default transport
}

// Client is the Moltin API HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiPrefix  string // e.g. "/v2"
	clientID   string
}

// NewClient creates a Moltin API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("moltin client ID is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	prefix, err := APIPrefix(cfg.APIVersion)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiPrefix:  prefix,
		clientID:   cfg.ClientID,
	}, nil
}

// APIPrefix maps a semver API version to its path prefix: "v2.1.0" → "/v2".
// An empty version selects DefaultAPIVersion.
func APIPrefix(version string) (string, error) {
	if version == "" {
		version = DefaultAPIVersion
	}
	if !semver.IsValid(version) {
		return "", fmt.Errorf("invalid API version %q: must be semver like v2 or v2.0.0", version)
	}
	return "/" + semver.Major(version), nil
}

// === OAuth ===

// RequestToken obtains a new access token with the implicit grant.
func (c *Client) RequestToken(ctx context.Context) (*TokenResponse, error) {
	form := url.Values{
		"client_id":  {c.clientID},
		"grant_type": {"implicit"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathOAuthToken, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	status, body, err := c.send(req)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return nil, model.NewAuthError(status, body)
	case !isSuccess(status):
		return nil, model.NewRemoteAPIError(status, body)
	}

	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token from token endpoint")
	}
	return &resp, nil
}

// === Catalog ===

// ListProducts returns the data array of GET /v2/products.
func (c *Client) ListProducts(ctx context.Context, token string) ([]Product, error) {
	var resp listResponse[Product]
	if err := c.call(ctx, http.MethodGet, "/products", nil, token, &resp); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return resp.Data, nil
}

// GetProduct fetches one product.
func (c *Client) GetProduct(ctx context.Context, token, productID string) (*Product, error) {
	var resp itemResponse[Product]
	if err := c.call(ctx, http.MethodGet, "/products/"+url.PathEscape(productID), nil, token, &resp); err != nil {
		return nil, fmt.Errorf("getting product %s: %w", productID, err)
	}
	return &resp.Data, nil
}

// FileLink resolves a file ID to its download URL.
func (c *Client) FileLink(ctx context.Context, token, fileID string) (string, error) {
	var resp itemResponse[File]
	if err := c.call(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID), nil, token, &resp); err != nil {
		return "", fmt.Errorf("getting file %s: %w", fileID, err)
	}
	if resp.Data.Link.Href == "" {
		return "", fmt.Errorf("file %s has no download link", fileID)
	}
	return resp.Data.Link.Href, nil
}

// Download fetches a file from a link returned by FileLink. No auth header is sent:
// file links point at a CDN, not the API.
func (c *Client) Download(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("file download", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading download: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, model.NewRemoteAPIError(resp.StatusCode, body)
	}
	if len(body) > maxImageBytes {
		return nil, fmt.Errorf("download exceeds %d bytes", maxImageBytes)
	}
	return body, nil
}

// === Cart ===

// ListCartItems returns the data array of GET /v2/carts/{id}/items.
func (c *Client) ListCartItems(ctx context.Context, token, cartID string) ([]CartItem, error) {
	var resp listResponse[CartItem]
	if err := c.call(ctx, http.MethodGet, cartItemsPath(cartID), nil, token, &resp); err != nil {
		return nil, fmt.Errorf("listing cart %s: %w", cartID, err)
	}
	return resp.Data, nil
}

// AddCartItem adds a product to the cart. The backend merges quantities for
// a product that is already in the cart.
func (c *Client) AddCartItem(ctx context.Context, token, cartID, productID string, quantity int) ([]CartItem, error) {
	body := itemResponse[cartItemInput]{Data: cartItemInput{
		ID:       productID,
		Type:     "cart_item",
		Quantity: quantity,
	}}

	var resp listResponse[CartItem]
	if err := c.call(ctx, http.MethodPost, cartItemsPath(cartID), body, token, &resp); err != nil {
		return nil, fmt.Errorf("adding %s to cart %s: %w", productID, cartID, err)
	}
	return resp.Data, nil
}

// RemoveCartItem deletes one line by line-item ID.
func (c *Client) RemoveCartItem(ctx context.Context, token, cartID, itemID string) error {
	path := cartItemsPath(cartID) + "/" + url.PathEscape(itemID)
	if err := c.call(ctx, http.MethodDelete, path, nil, token, nil); err != nil {
		return fmt.Errorf("removing item %s from cart %s: %w", itemID, cartID, err)
	}
	return nil
}

// ClearCart deletes every line. Clearing an empty cart is not an error.
func (c *Client) ClearCart(ctx context.Context, token, cartID string) error {
	if err := c.call(ctx, http.MethodDelete, cartItemsPath(cartID), nil, token, nil); err != nil {
		return fmt.Errorf("clearing cart %s: %w", cartID, err)
	}
	return nil
}

// === Customers & Checkout ===

// CreateCustomer registers a customer and returns its ID.
func (c *Client) CreateCustomer(ctx context.Context, token, name, email string) (string, error) {
	body := itemResponse[customerInput]{Data: customerInput{
		Type:  "customer",
		Name:  name,
		Email: email,
	}}

	var resp itemResponse[Customer]
	if err := c.call(ctx, http.MethodPost, "/customers", body, token, &resp); err != nil {
		return "", fmt.Errorf("creating customer: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("empty customer ID from backend")
	}
	return resp.Data.ID, nil
}

// Checkout converts the cart into an order for customerID.
// Addresses carry the buyer's name and placeholder geographic fields.
func (c *Client) Checkout(ctx context.Context, token, cartID, customerID string, buyer model.Buyer) error {
	body := itemResponse[checkoutInput]{Data: checkoutInput{
		Customer:        customerRef{ID: customerID},
		BillingAddress:  placeholderAddress(buyer, true),
		ShippingAddress: placeholderAddress(buyer, false),
	}}

	path := "/carts/" + url.PathEscape(cartID) + "/checkout"
	if err := c.call(ctx, http.MethodPost, path, body, token, nil); err != nil {
		return fmt.Errorf("checking out cart %s: %w", cartID, err)
	}
	return nil
}

func placeholderAddress(buyer model.Buyer, billing bool) Address {
	addr := Address{
		FirstName: withPlaceholder(buyer.FirstName),
		LastName:  withPlaceholder(buyer.LastName),
		Line1:     addressPlaceholder,
		Region:    addressPlaceholder,
		Postcode:  addressPlaceholder,
		Country:   addressPlaceholder,
	}
	if billing {
		addr.CompanyName = addressPlaceholder
	}
	return addr
}

func withPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return addressPlaceholder
	}
	return s
}

func cartItemsPath(cartID string) string {
	return "/carts/" + url.PathEscape(cartID) + "/items"
}

// === HTTP Helpers ===

// call builds an authenticated API request, executes it and decodes a 2xx body into result.
func (c *Client) call(ctx context.Context, method, path string, body interface{}, token string, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+c.apiPrefix+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+token)

	status, respBody, err := c.send(req)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return model.NewRemoteAPIError(status, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// send executes req and returns the status and full body.
func (c *Client) send(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, model.NewUpstreamError("moltin", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
