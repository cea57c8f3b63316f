package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"shopbot/internal/model"
)

func (m *Machine) showMenu(ctx context.Context, req *request) (*transition, error) {
	return m.menu(ctx, menuText)
}

func (m *Machine) menu(ctx context.Context, text string) (*transition, error) {
	products, err := m.shop.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	reply, err := menuReply(text, products)
	if err != nil {
		return nil, err
	}
	return &transition{next: model.StateMainMenu, reply: reply}, nil
}

func (m *Machine) showProduct(ctx context.Context, req *request) (*transition, error) {
	if req.callback.ID == "" {
		return nil, fmt.Errorf("%w: product button without id", model.ErrUnhandledEvent)
	}

	product, err := m.shop.GetProduct(ctx, req.callback.ID)
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	items, err := m.shop.CartItems(ctx, req.cartID())
	if err != nil {
		return nil, fmt.Errorf("getting cart: %w", err)
	}
	photo, err := m.shop.ProductImage(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("getting product image: %w", err)
	}

	reply, err := productReply(product, model.FindCartItem(items, product.ID), photo)
	if err != nil {
		return nil, err
	}
	return &transition{next: model.StateProduct, reply: reply}, nil
}

func (m *Machine) showCart(ctx context.Context, req *request) (*transition, error) {
	return m.cart(ctx, req.cartID())
}

func (m *Machine) cart(ctx context.Context, cartID string) (*transition, error) {
	items, err := m.shop.CartItems(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("getting cart: %w", err)
	}
	reply, err := cartReply(items)
	if err != nil {
		return nil, err
	}
	return &transition{next: model.StateCart, reply: reply}, nil
}

func (m *Machine) addToCart(ctx context.Context, req *request) (*transition, error) {
	cb := req.callback
	if cb.ID == "" || cb.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity button without product or amount", model.ErrUnhandledEvent)
	}
	if err := m.shop.AddToCart(ctx, req.cartID(), cb.ID, cb.Quantity); err != nil {
		return nil, fmt.Errorf("adding to cart: %w", err)
	}
	return m.menu(ctx, menuText)
}

func (m *Machine) removeFromCart(ctx context.Context, req *request) (*transition, error) {
	if req.callback.ID == "" {
		return nil, fmt.Errorf("%w: remove button without item id", model.ErrUnhandledEvent)
	}
	if err := m.shop.RemoveFromCart(ctx, req.cartID(), req.callback.ID); err != nil {
		return nil, fmt.Errorf("removing from cart: %w", err)
	}
	return m.cart(ctx, req.cartID())
}

func (m *Machine) askEmail(ctx context.Context, req *request) (*transition, error) {
	return &transition{next: model.StateWaitingEmail, reply: &Reply{Text: emailPromptText}}, nil
}

// acceptEmail checks out the cart for the customer behind this chat user,
// creating the customer on the first order.
func (m *Machine) acceptEmail(ctx context.Context, req *request) (*transition, error) {
	email, err := ValidateEmail(req.event.Text)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return &transition{
				next:      model.StateWaitingEmail,
				reply:     &Reply{Text: emailInvalidText},
				recovered: true,
			}, nil
		}
		return nil, err
	}

	sess := req.session
	buyer := model.Buyer{FirstName: req.event.FirstName, LastName: req.event.LastName}

	if sess.CustomerID == "" {
		customerID, err := m.shop.CreateCustomer(ctx, buyer.FullName(), email)
		if err != nil {
			return nil, fmt.Errorf("creating customer: %w", err)
		}
		if err := m.sessions.SaveCustomerID(ctx, sess.UserID, customerID); err != nil {
			return nil, fmt.Errorf("saving customer id: %w", err)
		}
		sess.CustomerID = customerID
		m.logger.Info("customer created",
			slog.Int64("user_id", sess.UserID),
			slog.String("customer_id", customerID),
		)
	}

	if err := m.shop.Checkout(ctx, req.cartID(), sess.CustomerID, buyer); err != nil {
		return nil, fmt.Errorf("checking out: %w", err)
	}
	if err := m.shop.ClearCart(ctx, req.cartID()); err != nil {
		return nil, fmt.Errorf("clearing cart: %w", err)
	}
	m.logger.Info("order placed",
		slog.Int64("user_id", sess.UserID),
		slog.String("customer_id", sess.CustomerID),
	)

	return m.menu(ctx, emailAcceptedText)
}
