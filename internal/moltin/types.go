// Package moltin implements the commerce gateway against the Moltin (Elastic Path)
// v2 REST API.
//
// Authentication:
// The bot uses the "implicit" grant: only a client_id, no secret. The token endpoint
// returns a bearer token and its lifetime in seconds; renewal is owned by
// internal/token, not by this package.
//
// Carts:
// Carts are addressed by an arbitrary caller-chosen reference. The bot uses the chat
// user ID, so a cart exists as soon as something is added to it.
package moltin

// === OAuth Types ===

// TokenResponse is the body returned by POST /oauth/access_token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // "Bearer"
	ExpiresIn   int    `json:"expires_in"` // seconds
	Expires     int64  `json:"expires"`    // unix time, informational
	Identifier  string `json:"identifier"` // "implicit"
}

// === Envelope Types ===

// listResponse wraps collection endpoints: {"data": [...]}.
type listResponse[T any] struct {
	Data []T `json:"data"`
}

// itemResponse wraps single-resource endpoints: {"data": {...}}.
type itemResponse[T any] struct {
	Data T `json:"data"`
}

// === Catalog Types ===

// Product is a catalog product as returned by /v2/products.
type Product struct {
	ID            string                `json:"id"`
	Type          string                `json:"type"`
	Name          string                `json:"name"`
	Slug          string                `json:"slug,omitempty"`
	SKU           string                `json:"sku,omitempty"`
	Description   string                `json:"description"`
	Price         []Price               `json:"price"`
	Relationships *ProductRelationships `json:"relationships,omitempty"`
}

// Price is one price entry. Amounts are in minor units.
type Price struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	IncludesTax bool   `json:"includes_tax"`
}

// ProductRelationships links a product to files and categories.
type ProductRelationships struct {
	MainImage *Relationship `json:"main_image,omitempty"`
}

// Relationship is a JSON:API style to-one relationship.
type Relationship struct {
	Data *RelationshipData `json:"data"`
}

// RelationshipData identifies the related resource.
type RelationshipData struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// File is a stored file; Link.Href is a public download URL.
type File struct {
	ID       string   `json:"id"`
	FileName string   `json:"file_name,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
	Link     FileLink `json:"link"`
}

// FileLink holds the download location of a file.
type FileLink struct {
	Href string `json:"href"`
}

// === Cart Types ===

// CartItem is one line of a cart as returned by /v2/carts/{id}/items.
type CartItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
	Value     Money  `json:"value"` // unit price × quantity
}

// Money is an amount in minor units.
type Money struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	IncludesTax bool   `json:"includes_tax"`
}

// cartItemInput is the body of POST /v2/carts/{id}/items.
type cartItemInput struct {
	ID       string `json:"id"`   // product ID
	Type     string `json:"type"` // always "cart_item"
	Quantity int    `json:"quantity"`
}

// === Customer Types ===

// Customer is a registered customer.
type Customer struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type customerInput struct {
	Type  string `json:"type"` // always "customer"
	Name  string `json:"name"`
	Email string `json:"email"`
}

// === Checkout Types ===

type checkoutInput struct {
	Customer        customerRef `json:"customer"`
	BillingAddress  Address     `json:"billing_address"`
	ShippingAddress Address     `json:"shipping_address"`
}

type customerRef struct {
	ID string `json:"id"`
}

// Address is a billing or shipping address.
type Address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CompanyName string `json:"company_name,omitempty"`
	Line1       string `json:"line_1"`
	Region      string `json:"region"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
}
