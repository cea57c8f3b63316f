package conversation

import (
	"errors"
	"fmt"

	"github.com/dunglas/httpsfv"
)

// MaxPayloadBytes is Telegram's limit on callback data.
const MaxPayloadBytes = 64

// Action is the tag of a button payload.
type Action string

const (
	ActionProduct  Action = "product"  // id: product ID
	ActionCart     Action = "cart"     // show the cart
	ActionBack     Action = "back"     // product view back to the menu
	ActionMenu     Action = "menu"     // cart view back to the menu
	ActionCheckout Action = "checkout" // ask for the email
	ActionQuantity Action = "qty"      // n: kilograms, id: product ID
	ActionRemove   Action = "remove"   // id: cart line-item ID
)

func (a Action) known() bool {
	switch a {
	case ActionProduct, ActionCart, ActionBack, ActionMenu, ActionCheckout, ActionQuantity, ActionRemove:
		return true
	}
	return false
}

// Callback is a decoded button payload. Payloads are RFC 8941 items whose
// bare value is the action token and whose parameters carry the arguments:
//
//	product;id="a6f1..."
//	qty;n=15;id="a6f1..."
//	cart
type Callback struct {
	Action   Action
	ID       string
	Quantity int
}

// Encode serializes the callback and checks it fits in a Telegram button.
func (c Callback) Encode() (string, error) {
	if c.Action == "" {
		return "", errors.New("callback has no action")
	}

	item := httpsfv.NewItem(httpsfv.Token(c.Action))
	if c.Quantity != 0 {
		item.Params.Add("n", int64(c.Quantity))
	}
	if c.ID != "" {
		item.Params.Add("id", c.ID)
	}

	s, err := httpsfv.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encoding %s callback: %w", c.Action, err)
	}
	if len(s) > MaxPayloadBytes {
		return "", fmt.Errorf("%s callback is %d bytes, limit is %d", c.Action, len(s), MaxPayloadBytes)
	}
	return s, nil
}

// DecodeCallback parses a button payload. Anything that is not a tagged item,
// such as a payload sent by an older release, is an error.
func DecodeCallback(payload string) (Callback, error) {
	if payload == "" {
		return Callback{}, errors.New("empty callback payload")
	}

	item, err := httpsfv.UnmarshalItem([]string{payload})
	if err != nil {
		return Callback{}, fmt.Errorf("invalid callback payload: %w", err)
	}
	action, ok := item.Value.(httpsfv.Token)
	if !ok {
		return Callback{}, errors.New("callback action must be a token")
	}

	cb := Callback{Action: Action(action)}
	if !cb.Action.known() {
		return Callback{}, fmt.Errorf("unknown callback action %q", action)
	}
	if v, ok := item.Params.Get("id"); ok {
		id, ok := v.(string)
		if !ok {
			return Callback{}, errors.New("callback id must be a string")
		}
		cb.ID = id
	}
	if v, ok := item.Params.Get("n"); ok {
		n, ok := v.(int64)
		if !ok {
			return Callback{}, errors.New("callback quantity must be an integer")
		}
		cb.Quantity = int(n)
	}
	return cb, nil
}
