package conversation

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"shopbot/internal/model"
)

// Quantities offered by the product view, in kilograms.
var Quantities = []int{5, 10, 15}

// Telegram limits, counted in UTF-16 code units.
const (
	maxCaptionLen = 1024
	maxTextLen    = 4096
)

const (
	menuText          = "🐟 Hi, I am the fish shop bot!\nChoose a product"
	emailPromptText   = "Please enter your email"
	emailInvalidText  = "That does not look like an email address, please try again:"
	emailAcceptedText = "Email accepted, we will contact you shortly"
	emptyCartText     = "🧺 Your cart is empty"
)

// Button is one inline keyboard button.
type Button struct {
	Label   string
	Payload string
}

// Keyboard is an ordered list of button rows.
type Keyboard [][]Button

// Reply is what the bot sends for one transition. Photo, when set, is a
// local file path and Text becomes its caption.
type Reply struct {
	Text     string
	Photo    string
	Keyboard Keyboard
}

// keyboardBuilder collects rows and keeps the first payload encoding error.
type keyboardBuilder struct {
	rows Keyboard
	err  error
}

func (b *keyboardBuilder) button(label string, cb Callback) Button {
	payload, err := cb.Encode()
	if err != nil && b.err == nil {
		b.err = err
	}
	return Button{Label: label, Payload: payload}
}

func (b *keyboardBuilder) row(buttons ...Button) {
	b.rows = append(b.rows, buttons)
}

// menuReply lists every product on its own row, then the cart button.
func menuReply(text string, products []model.Product) (*Reply, error) {
	var kb keyboardBuilder
	for _, p := range products {
		kb.row(kb.button("🐟 "+p.Name, Callback{Action: ActionProduct, ID: p.ID}))
	}
	kb.row(kb.button("🧺 Cart", Callback{Action: ActionCart}))
	if kb.err != nil {
		return nil, kb.err
	}
	return &Reply{Text: text, Keyboard: kb.rows}, nil
}

// productReply shows the product, how much of it is already in the cart and
// the quantity picker.
func productReply(p *model.Product, inCart *model.CartItem, photo string) (*Reply, error) {
	var quantity int
	var lineTotal int64
	if inCart != nil {
		quantity = inCart.Quantity
		lineTotal = inCart.LineTotal
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🐟 %s\n\n", p.Name)
	fmt.Fprintf(&sb, "💰 %s per kg\n\n", model.FormatPrice(p.Price))
	fmt.Fprintf(&sb, "💵 %d kg in cart for %s", quantity, model.FormatPrice(lineTotal))
	if p.Description != "" {
		fmt.Fprintf(&sb, "\n\n🤓 %s", p.Description)
	}

	var kb keyboardBuilder
	pickers := make([]Button, 0, len(Quantities))
	for _, n := range Quantities {
		pickers = append(pickers, kb.button(fmt.Sprintf("%d kg", n), Callback{Action: ActionQuantity, Quantity: n, ID: p.ID}))
	}
	kb.row(pickers...)
	kb.row(kb.button("↩️ Back", Callback{Action: ActionBack}))
	kb.row(kb.button("🧺 Cart", Callback{Action: ActionCart}))
	if kb.err != nil {
		return nil, kb.err
	}
	limit := maxTextLen
	if photo != "" {
		limit = maxCaptionLen
	}
	return &Reply{Text: truncate(sb.String(), limit), Photo: photo, Keyboard: kb.rows}, nil
}

// truncate cuts s to at most limit UTF-16 code units, ending it with "…"
// when anything was dropped.
func truncate(s string, limit int) string {
	if utf16Len(s) <= limit {
		return s
	}
	const ellipsis = "…"
	budget := limit - utf16Len(ellipsis)
	n := 0
	for i, r := range s {
		n += utf16.RuneLen(r)
		if n > budget {
			return strings.TrimRight(s[:i], " \n") + ellipsis
		}
	}
	return s
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// cartReply summarizes the cart with one remove button per line. Checkout is
// offered only for a non-empty cart.
func cartReply(items []model.CartItem) (*Reply, error) {
	var kb keyboardBuilder
	var sb strings.Builder

	if len(items) == 0 {
		sb.WriteString(emptyCartText)
	} else {
		sb.WriteString("🧺 Your cart:\n\n")
		for _, item := range items {
			fmt.Fprintf(&sb, "🐟 %s\n%s per kg\n%d kg in cart for %s\n\n",
				item.Name, model.FormatPrice(item.UnitPrice), item.Quantity, model.FormatPrice(item.LineTotal))
			kb.row(kb.button("❌ Remove "+item.Name, Callback{Action: ActionRemove, ID: item.ID}))
		}
		fmt.Fprintf(&sb, "Total: %s", model.FormatPrice(model.CartTotal(items)))
	}

	kb.row(kb.button("📋 Menu", Callback{Action: ActionMenu}))
	if len(items) > 0 {
		kb.row(kb.button("💳 Checkout", Callback{Action: ActionCheckout}))
	}
	if kb.err != nil {
		return nil, kb.err
	}
	return &Reply{Text: sb.String(), Keyboard: kb.rows}, nil
}
