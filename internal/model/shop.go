// Package model holds the domain types shared by the gateway, the conversation
// state machine and the transports, plus the error taxonomy.
package model

// Product is a catalog entry as the bot sees it. Prices are in minor units.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency,omitempty"`
	ImageID     string `json:"image_id,omitempty"` // backend file ID, empty when the product has no main image
}

// CartItem is one line of a cart. ID identifies the line, not the product.
type CartItem struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
	Currency  string `json:"currency,omitempty"`
}

// CartTotal sums line totals. The bot never recomputes unit × quantity itself.
func CartTotal(items []CartItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal
	}
	return total
}

// FindCartItem returns the line holding productID, or nil.
func FindCartItem(items []CartItem, productID string) *CartItem {
	for i := range items {
		if items[i].ProductID == productID {
			return &items[i]
		}
	}
	return nil
}

// Buyer is the name attached to a customer record and checkout addresses.
type Buyer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FullName joins first and last name, skipping empty parts.
func (b Buyer) FullName() string {
	switch {
	case b.FirstName == "":
		return b.LastName
	case b.LastName == "":
		return b.FirstName
	default:
		return b.FirstName + " " + b.LastName
	}
}
