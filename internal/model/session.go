package model

// State is a step of the purchase funnel a chat user is in.
type State string

const (
	// StateNone is the implicit state of a user who has not sent /start yet.
	StateNone         State = ""
	StateMainMenu     State = "MAIN_MENU"
	StateProduct      State = "PRODUCT"
	StateCart         State = "CART"
	StateWaitingEmail State = "WAITING_EMAIL"
)

// Valid reports whether s is one of the known states, including StateNone.
func (s State) Valid() bool {
	switch s {
	case StateNone, StateMainMenu, StateProduct, StateCart, StateWaitingEmail:
		return true
	}
	return false
}

// Session is the per-user conversation record.
// UserID doubles as the backend cart ID.
type Session struct {
	UserID     int64
	State      State
	CustomerID string // set once, after the first successful checkout
}
