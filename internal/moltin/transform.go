package moltin

import "shopbot/internal/model"

// ProductToModel converts a backend product. The first price entry wins;
// the catalog is single-currency.
func ProductToModel(p *Product) *model.Product {
	if p == nil {
		return nil
	}
	out := &model.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
	}
	if len(p.Price) > 0 {
		out.Price = p.Price[0].Amount
		out.Currency = p.Price[0].Currency
	}
	if p.Relationships != nil && p.Relationships.MainImage != nil && p.Relationships.MainImage.Data != nil {
		out.ImageID = p.Relationships.MainImage.Data.ID
	}
	return out
}

// ProductsToModel converts a product list, preserving order.
func ProductsToModel(products []Product) []model.Product {
	out := make([]model.Product, 0, len(products))
	for i := range products {
		out = append(out, *ProductToModel(&products[i]))
	}
	return out
}

// CartItemsToModel converts cart lines. Only product lines are kept;
// promotion and custom items have no product to show.
func CartItemsToModel(items []CartItem) []model.CartItem {
	out := make([]model.CartItem, 0, len(items))
	for _, item := range items {
		if item.Type != "" && item.Type != "cart_item" {
			continue
		}
		out = append(out, model.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.Amount,
			LineTotal: item.Value.Amount,
			Currency:  item.Value.Currency,
		})
	}
	return out
}
