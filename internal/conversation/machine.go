// Package conversation implements the purchase funnel as a per-user state
// machine: MAIN_MENU → PRODUCT → CART → WAITING_EMAIL → MAIN_MENU.
//
// Each inbound event is matched against the ordered routes of the user's
// current state. The first matching route runs, its reply is sent, and only
// then is the next state saved. A failure anywhere before the save leaves
// the session in its prior state, so the user can press the same button again.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"shopbot/internal/adapter"
	"shopbot/internal/metrics"
	"shopbot/internal/model"
)

// EventKind classifies inbound chat events.
type EventKind string

const (
	EventStart    EventKind = "start"    // the /start command
	EventCallback EventKind = "callback" // an inline button press
	EventText     EventKind = "text"     // any other text message
)

// Event is one inbound chat event.
type Event struct {
	Kind      EventKind
	UserID    int64
	ChatID    int64
	MessageID int    // the message holding the pressed button, for callbacks
	Payload   string // callback data
	Text      string
	FirstName string
	LastName  string
}

// Messenger delivers replies to the chat transport.
type Messenger interface {
	Send(ctx context.Context, chatID int64, reply *Reply) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// Sessions loads and stores per-user conversation records. *store.Sessions implements it.
type Sessions interface {
	Load(ctx context.Context, userID int64) (*model.Session, error)
	Save(ctx context.Context, sess *model.Session) error
	SaveCustomerID(ctx context.Context, userID int64, customerID string) error
}

// transition is the outcome of a handler.
type transition struct {
	next      model.State
	reply     *Reply
	recovered bool // the handler turned a validation error into a re-prompt
}

// request is what a handler sees.
type request struct {
	event    Event
	callback Callback
	session  *model.Session
}

func (r *request) cartID() string {
	return strconv.FormatInt(r.session.UserID, 10)
}

type handlerFunc func(ctx context.Context, req *request) (*transition, error)

// route matches an event kind and, for callbacks, an action.
type route struct {
	kind   EventKind
	action Action
	handle handlerFunc
}

func (r route) matches(ev Event, cb Callback) bool {
	if r.kind != ev.Kind {
		return false
	}
	return r.kind != EventCallback || r.action == cb.Action
}

// Machine dispatches chat events. It is safe for concurrent use as long as
// two events for the same user are not dispatched at the same time.
type Machine struct {
	shop      adapter.Shop
	sessions  Sessions
	messenger Messenger
	logger    *slog.Logger
	metrics   *metrics.Metrics
	routes    map[model.State][]route
}

// New creates a state machine. mt may be nil.
func New(shop adapter.Shop, sessions Sessions, messenger Messenger, logger *slog.Logger, mt *metrics.Metrics) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		shop:      shop,
		sessions:  sessions,
		messenger: messenger,
		logger:    logger,
		metrics:   mt,
	}
	m.routes = map[model.State][]route{
		model.StateMainMenu: {
			{kind: EventCallback, action: ActionCart, handle: m.showCart},
			{kind: EventCallback, action: ActionProduct, handle: m.showProduct},
		},
		model.StateProduct: {
			{kind: EventCallback, action: ActionBack, handle: m.showMenu},
			{kind: EventCallback, action: ActionCart, handle: m.showCart},
			{kind: EventCallback, action: ActionQuantity, handle: m.addToCart},
		},
		model.StateCart: {
			{kind: EventCallback, action: ActionCheckout, handle: m.askEmail},
			{kind: EventCallback, action: ActionMenu, handle: m.showMenu},
			{kind: EventCallback, action: ActionRemove, handle: m.removeFromCart},
		},
		model.StateWaitingEmail: {
			{kind: EventText, handle: m.acceptEmail},
		},
	}
	return m
}

// Dispatch runs one event through the state machine. An event with no route
// in the user's current state returns an error wrapping model.ErrUnhandledEvent;
// nothing is sent and the session is not touched.
func (m *Machine) Dispatch(ctx context.Context, ev Event) error {
	start := time.Now()
	tr, from, err := m.dispatch(ctx, ev)

	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, model.ErrUnhandledEvent):
		outcome = metrics.OutcomeUnhandled
	case err != nil:
		outcome = metrics.OutcomeError
	case tr.recovered:
		outcome = metrics.OutcomeRecovered
	}
	m.metrics.ObserveEvent(string(ev.Kind), outcome)

	if err == nil {
		m.logger.Debug("transition",
			slog.Int64("user_id", ev.UserID),
			slog.String("event", string(ev.Kind)),
			slog.String("from", string(from)),
			slog.String("to", string(tr.next)),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return err
}

func (m *Machine) dispatch(ctx context.Context, ev Event) (*transition, model.State, error) {
	sess, err := m.sessions.Load(ctx, ev.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("loading session: %w", err)
	}
	from := sess.State

	handle, cb, err := m.match(sess.State, ev)
	if err != nil {
		return nil, from, err
	}

	req := &request{event: ev, callback: cb, session: sess}
	tr, err := handle(ctx, req)
	if err != nil {
		return nil, from, err
	}

	if err := m.messenger.Send(ctx, ev.ChatID, tr.reply); err != nil {
		return nil, from, fmt.Errorf("sending reply: %w", err)
	}
	if ev.Kind == EventCallback && ev.MessageID != 0 {
		// The reply is already out; a stale message is cosmetic.
		if err := m.messenger.Delete(ctx, ev.ChatID, ev.MessageID); err != nil {
			m.logger.Warn("deleting pressed message",
				slog.Int64("chat_id", ev.ChatID),
				slog.Int("message_id", ev.MessageID),
				slog.Any("error", err),
			)
		}
	}

	sess.State = tr.next
	if err := m.sessions.Save(ctx, sess); err != nil {
		return nil, from, fmt.Errorf("saving session: %w", err)
	}
	return tr, from, nil
}

// match finds the handler for ev. /start matches in every state.
func (m *Machine) match(state model.State, ev Event) (handlerFunc, Callback, error) {
	if ev.Kind == EventStart {
		return m.showMenu, Callback{}, nil
	}

	var cb Callback
	if ev.Kind == EventCallback {
		decoded, err := DecodeCallback(ev.Payload)
		if err != nil {
			return nil, Callback{}, fmt.Errorf("%w: %v", model.ErrUnhandledEvent, err)
		}
		cb = decoded
	}

	for _, r := range m.routes[state] {
		if r.matches(ev, cb) {
			return r.handle, cb, nil
		}
	}

	trigger := string(ev.Kind)
	if ev.Kind == EventCallback {
		trigger += " " + string(cb.Action)
	}
	if state == model.StateNone {
		return nil, Callback{}, fmt.Errorf("%w: %s without a session", model.ErrUnhandledEvent, trigger)
	}
	return nil, Callback{}, fmt.Errorf("%w: %s in state %s", model.ErrUnhandledEvent, trigger, state)
}
