package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"shopbot/internal/adapter"
	"shopbot/internal/metrics"
	"shopbot/internal/model"
	"shopbot/internal/store"
)

const (
	testUser    int64 = 42
	testMessage       = 100
)

// recordingMessenger logs every outbound action in order.
type recordingMessenger struct {
	ops       []string
	replies   []*Reply
	sendErr   error
	deleteErr error
}

func (r *recordingMessenger) Send(ctx context.Context, chatID int64, reply *Reply) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	r.ops = append(r.ops, "send")
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recordingMessenger) Delete(ctx context.Context, chatID int64, messageID int) error {
	r.ops = append(r.ops, fmt.Sprintf("delete %d", messageID))
	return r.deleteErr
}

func (r *recordingMessenger) last() *Reply {
	if len(r.replies) == 0 {
		return nil
	}
	return r.replies[len(r.replies)-1]
}

type testEnv struct {
	t         *testing.T
	machine   *Machine
	shop      *adapter.Mock
	kv        *store.Memory
	sessions  *store.Sessions
	messenger *recordingMessenger
	metrics   *metrics.Metrics

	products  []model.Product
	carts     map[string][]model.CartItem
	customers []string
	checkouts []model.Buyer
	nextLine  int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		t:         t,
		kv:        store.NewMemory(),
		messenger: &recordingMessenger{},
		metrics:   metrics.New(),
		products: []model.Product{
			{ID: "p-1", Name: "Salmon", Description: "Fresh salmon", Price: 1250, ImageID: "file-1"},
			{ID: "p-2", Name: "Tuna", Price: 2000},
		},
		carts: make(map[string][]model.CartItem),
	}
	env.sessions = store.NewSessions(env.kv)
	env.shop = &adapter.Mock{
		ListProductsFunc: func(ctx context.Context) ([]model.Product, error) {
			return env.products, nil
		},
		GetProductFunc: func(ctx context.Context, id string) (*model.Product, error) {
			for i := range env.products {
				if env.products[i].ID == id {
					p := env.products[i]
					return &p, nil
				}
			}
			return nil, model.NewRemoteAPIError(404, []byte("not found"))
		},
		ProductImageFunc: func(ctx context.Context, p *model.Product) (string, error) {
			if p.ImageID == "" {
				return "", nil
			}
			return "/images/" + p.Name + ".png", nil
		},
		CartItemsFunc: func(ctx context.Context, cartID string) ([]model.CartItem, error) {
			return append([]model.CartItem(nil), env.carts[cartID]...), nil
		},
		AddToCartFunc: func(ctx context.Context, cartID, productID string, qty int) error {
			p, _ := env.shop.GetProductFunc(ctx, productID)
			items := env.carts[cartID]
			if item := model.FindCartItem(items, productID); item != nil {
				item.Quantity += qty
				item.LineTotal = item.UnitPrice * int64(item.Quantity)
				return nil
			}
			env.nextLine++
			env.carts[cartID] = append(items, model.CartItem{
				ID:        fmt.Sprintf("line-%d", env.nextLine),
				ProductID: productID,
				Name:      p.Name,
				Quantity:  qty,
				UnitPrice: p.Price,
				LineTotal: p.Price * int64(qty),
			})
			return nil
		},
		RemoveFromCartFunc: func(ctx context.Context, cartID, itemID string) error {
			var kept []model.CartItem
			for _, item := range env.carts[cartID] {
				if item.ID != itemID {
					kept = append(kept, item)
				}
			}
			env.carts[cartID] = kept
			return nil
		},
		ClearCartFunc: func(ctx context.Context, cartID string) error {
			delete(env.carts, cartID)
			return nil
		},
		CreateCustomerFunc: func(ctx context.Context, name, email string) (string, error) {
			env.customers = append(env.customers, name+" <"+email+">")
			return fmt.Sprintf("customer-%d", len(env.customers)), nil
		},
		CheckoutFunc: func(ctx context.Context, cartID, customerID string, buyer model.Buyer) error {
			env.checkouts = append(env.checkouts, buyer)
			return nil
		},
	}
	env.machine = New(env.shop, env.sessions, env.messenger, nil, env.metrics)
	return env
}

func (e *testEnv) setState(state model.State) {
	e.t.Helper()
	if err := e.sessions.Save(context.Background(), &model.Session{UserID: testUser, State: state}); err != nil {
		e.t.Fatalf("saving session: %v", err)
	}
}

func (e *testEnv) state() model.State {
	e.t.Helper()
	sess, err := e.sessions.Load(context.Background(), testUser)
	if err != nil {
		e.t.Fatalf("loading session: %v", err)
	}
	return sess.State
}

func (e *testEnv) cart() []model.CartItem {
	return e.carts["42"]
}

func (e *testEnv) dispatch(ev Event) error {
	return e.machine.Dispatch(context.Background(), ev)
}

func (e *testEnv) mustDispatch(ev Event) {
	e.t.Helper()
	if err := e.dispatch(ev); err != nil {
		e.t.Fatalf("Dispatch(%+v) error: %v", ev, err)
	}
}

func startEvent() Event {
	return Event{Kind: EventStart, UserID: testUser, ChatID: testUser, Text: "/start", FirstName: "Ivan", LastName: "Petrov"}
}

func pressEvent(t *testing.T, cb Callback) Event {
	t.Helper()
	payload, err := cb.Encode()
	if err != nil {
		t.Fatalf("Encode(%+v) error: %v", cb, err)
	}
	return Event{Kind: EventCallback, UserID: testUser, ChatID: testUser, MessageID: testMessage, Payload: payload, FirstName: "Ivan", LastName: "Petrov"}
}

func textEvent(text string) Event {
	return Event{Kind: EventText, UserID: testUser, ChatID: testUser, Text: text, FirstName: "Ivan", LastName: "Petrov"}
}

func payloads(r *Reply) []string {
	var out []string
	for _, row := range r.Keyboard {
		for _, b := range row {
			out = append(out, b.Payload)
		}
	}
	return out
}

func TestStartShowsMenu(t *testing.T) {
	env := newTestEnv(t)

	env.mustDispatch(startEvent())

	if got := env.state(); got != model.StateMainMenu {
		t.Errorf("state = %q, want MAIN_MENU", got)
	}
	reply := env.messenger.last()
	want := []string{`product;id="p-1"`, `product;id="p-2"`, "cart"}
	if got := payloads(reply); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("menu payloads = %v, want %v", got, want)
	}
	if len(reply.Keyboard) != 3 {
		t.Errorf("rows = %d, want one per product plus cart", len(reply.Keyboard))
	}
	if env.messenger.ops[0] != "send" || len(env.messenger.ops) != 1 {
		t.Errorf("ops = %v, want a single send", env.messenger.ops)
	}
}

func TestStartFromAnyState(t *testing.T) {
	for _, state := range []model.State{model.StateNone, model.StateMainMenu, model.StateProduct, model.StateCart, model.StateWaitingEmail} {
		t.Run(string(state), func(t *testing.T) {
			env := newTestEnv(t)
			env.setState(state)

			env.mustDispatch(startEvent())

			if got := env.state(); got != model.StateMainMenu {
				t.Errorf("state = %q, want MAIN_MENU", got)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from     model.State
		cb       Callback
		want     model.State
		wantText string
	}{
		{"menu to product", model.StateMainMenu, Callback{Action: ActionProduct, ID: "p-1"}, model.StateProduct, "Salmon"},
		{"menu to cart", model.StateMainMenu, Callback{Action: ActionCart}, model.StateCart, "cart"},
		{"product back", model.StateProduct, Callback{Action: ActionBack}, model.StateMainMenu, "Choose a product"},
		{"product to cart", model.StateProduct, Callback{Action: ActionCart}, model.StateCart, "cart"},
		{"product quantity", model.StateProduct, Callback{Action: ActionQuantity, Quantity: 5, ID: "p-2"}, model.StateMainMenu, "Choose a product"},
		{"cart checkout", model.StateCart, Callback{Action: ActionCheckout}, model.StateWaitingEmail, "email"},
		{"cart to menu", model.StateCart, Callback{Action: ActionMenu}, model.StateMainMenu, "Choose a product"},
		{"cart remove", model.StateCart, Callback{Action: ActionRemove, ID: "line-x"}, model.StateCart, "cart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.setState(tt.from)

			env.mustDispatch(pressEvent(t, tt.cb))

			if got := env.state(); got != tt.want {
				t.Errorf("state = %q, want %q", got, tt.want)
			}
			if reply := env.messenger.last(); !strings.Contains(reply.Text, tt.wantText) {
				t.Errorf("reply = %q, want it to contain %q", reply.Text, tt.wantText)
			}
		})
	}
}

func TestUnmatchedEvents(t *testing.T) {
	tests := []struct {
		name  string
		state model.State
		event func(t *testing.T) Event
	}{
		{"no session button", model.StateNone, func(t *testing.T) Event { return pressEvent(t, Callback{Action: ActionCart}) }},
		{"no session text", model.StateNone, func(t *testing.T) Event { return textEvent("hello") }},
		{"menu text", model.StateMainMenu, func(t *testing.T) Event { return textEvent("a@b.com") }},
		{"menu back", model.StateMainMenu, func(t *testing.T) Event { return pressEvent(t, Callback{Action: ActionBack}) }},
		{"menu quantity", model.StateMainMenu, func(t *testing.T) Event {
			return pressEvent(t, Callback{Action: ActionQuantity, Quantity: 5, ID: "p-1"})
		}},
		{"menu untagged product id", model.StateMainMenu, func(t *testing.T) Event {
			ev := pressEvent(t, Callback{Action: ActionCart})
			ev.Payload = "p-1"
			return ev
		}},
		{"product checkout", model.StateProduct, func(t *testing.T) Event { return pressEvent(t, Callback{Action: ActionCheckout}) }},
		{"product text", model.StateProduct, func(t *testing.T) Event { return textEvent("15") }},
		{"cart product", model.StateCart, func(t *testing.T) Event {
			return pressEvent(t, Callback{Action: ActionProduct, ID: "p-1"})
		}},
		{"cart back", model.StateCart, func(t *testing.T) Event { return pressEvent(t, Callback{Action: ActionBack}) }},
		{"waiting email button", model.StateWaitingEmail, func(t *testing.T) Event { return pressEvent(t, Callback{Action: ActionCart}) }},
		{"garbage payload", model.StateCart, func(t *testing.T) Event {
			ev := pressEvent(t, Callback{Action: ActionMenu})
			ev.Payload = "Оплата"
			return ev
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.state != model.StateNone {
				env.setState(tt.state)
			}

			err := env.dispatch(tt.event(t))

			if !errors.Is(err, model.ErrUnhandledEvent) {
				t.Fatalf("Dispatch() error = %v, want ErrUnhandledEvent", err)
			}
			if len(env.messenger.ops) != 0 {
				t.Errorf("ops = %v, want none", env.messenger.ops)
			}
			if got := env.state(); got != tt.state {
				t.Errorf("state = %q, want unchanged %q", got, tt.state)
			}
		})
	}
}

func TestUnmatchedEventWithoutSessionWritesNothing(t *testing.T) {
	env := newTestEnv(t)

	env.dispatch(textEvent("hello"))

	if _, err := env.kv.Get(context.Background(), store.StateKey(testUser)); !errors.Is(err, store.ErrNotFound) {
		t.Error("unmatched event should not create a session record")
	}
}

func TestCallbackSendsThenDeletes(t *testing.T) {
	env := newTestEnv(t)
	env.setState(model.StateMainMenu)

	env.mustDispatch(pressEvent(t, Callback{Action: ActionCart}))

	want := []string{"send", "delete 100"}
	if strings.Join(env.messenger.ops, ",") != strings.Join(want, ",") {
		t.Errorf("ops = %v, want %v", env.messenger.ops, want)
	}
}

func TestTextDoesNotDelete(t *testing.T) {
	env := newTestEnv(t)
	env.setState(model.StateWaitingEmail)

	env.mustDispatch(textEvent("not-an-email"))

	if len(env.messenger.ops) != 1 || env.messenger.ops[0] != "send" {
		t.Errorf("ops = %v, want a single send", env.messenger.ops)
	}
}

func TestDeleteFailureStillAdvances(t *testing.T) {
	env := newTestEnv(t)
	env.setState(model.StateMainMenu)
	env.messenger.deleteErr = errors.New("message can't be deleted")

	env.mustDispatch(pressEvent(t, Callback{Action: ActionCart}))

	if got := env.state(); got != model.StateCart {
		t.Errorf("state = %q, want CART", got)
	}
}

func TestBuyFifteenKilograms(t *testing.T) {
	env := newTestEnv(t)

	env.mustDispatch(startEvent())
	env.mustDispatch(pressEvent(t, Callback{Action: ActionProduct, ID: "p-1"}))
	env.mustDispatch(pressEvent(t, Callback{Action: ActionQuantity, Quantity: 15, ID: "p-1"}))

	item := model.FindCartItem(env.cart(), "p-1")
	if item == nil {
		t.Fatal("cart has no line for p-1")
	}
	if item.Quantity != 15 {
		t.Errorf("quantity = %d, want 15", item.Quantity)
	}
	if got := env.state(); got != model.StateMainMenu {
		t.Errorf("state = %q, want MAIN_MENU", got)
	}
}

func TestProductViewShowsCartQuantityAndPhoto(t *testing.T) {
	env := newTestEnv(t)
	env.carts["42"] = []model.CartItem{{ID: "line-1", ProductID: "p-1", Name: "Salmon", Quantity: 10, UnitPrice: 1250, LineTotal: 12500}}
	env.setState(model.StateMainMenu)

	env.mustDispatch(pressEvent(t, Callback{Action: ActionProduct, ID: "p-1"}))

	reply := env.messenger.last()
	if reply.Photo != "/images/Salmon.png" {
		t.Errorf("photo = %q, want /images/Salmon.png", reply.Photo)
	}
	for _, want := range []string{"12.50$ per kg", "10 kg in cart for 125.00$", "Fresh salmon"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("caption %q missing %q", reply.Text, want)
		}
	}
	wantPayloads := []string{`qty;n=5;id="p-1"`, `qty;n=10;id="p-1"`, `qty;n=15;id="p-1"`, "back", "cart"}
	if got := payloads(reply); strings.Join(got, " ") != strings.Join(wantPayloads, " ") {
		t.Errorf("payloads = %v, want %v", got, wantPayloads)
	}
}

func TestProductWithoutImageIsText(t *testing.T) {
	env := newTestEnv(t)
	env.setState(model.StateMainMenu)

	env.mustDispatch(pressEvent(t, Callback{Action: ActionProduct, ID: "p-2"}))

	if reply := env.messenger.last(); reply.Photo != "" {
		t.Errorf("photo = %q, want none", reply.Photo)
	}
}

func TestRemoveFromCartReRendersCart(t *testing.T) {
	env := newTestEnv(t)
	env.carts["42"] = []model.CartItem{
		{ID: "line-1", ProductID: "p-1", Name: "Salmon", Quantity: 5, UnitPrice: 1250, LineTotal: 6250},
		{ID: "line-2", ProductID: "p-2", Name: "Tuna", Quantity: 5, UnitPrice: 2000, LineTotal: 10000},
	}
	env.setState(model.StateCart)

	env.mustDispatch(pressEvent(t, Callback{Action: ActionRemove, ID: "line-1"}))

	if len(env.cart()) != 1 || env.cart()[0].ID != "line-2" {
		t.Errorf("cart = %+v, want only line-2", env.cart())
	}
	reply := env.messenger.last()
	if strings.Contains(reply.Text, "Salmon") {
		t.Errorf("cart text %q still lists the removed line", reply.Text)
	}
	if !strings.Contains(reply.Text, "Total: 100.00$") {
		t.Errorf("cart text %q missing new total", reply.Text)
	}
	if got := env.state(); got != model.StateCart {
		t.Errorf("state = %q, want CART", got)
	}
}

func TestInvalidEmailReprompts(t *testing.T) {
	env := newTestEnv(t)
	env.setState(model.StateWaitingEmail)

	env.mustDispatch(textEvent("not-an-email"))

	if got := env.state(); got != model.StateWaitingEmail {
		t.Errorf("state = %q, want WAITING_EMAIL", got)
	}
	if reply := env.messenger.last(); reply.Text != emailInvalidText {
		t.Errorf("reply = %q, want re-prompt", reply.Text)
	}
	if len(env.customers) != 0 || len(env.checkouts) != 0 {
		t.Error("invalid email must not reach the backend")
	}
}

func TestValidEmailChecksOut(t *testing.T) {
	env := newTestEnv(t)
	env.carts["42"] = []model.CartItem{{ID: "line-1", ProductID: "p-1", Name: "Salmon", Quantity: 5, UnitPrice: 1250, LineTotal: 6250}}
	env.setState(model.StateWaitingEmail)

	env.mustDispatch(textEvent("a@b.com"))

	if len(env.cart()) != 0 {
		t.Errorf("cart = %+v, want cleared", env.cart())
	}
	customerID, err := env.kv.Get(context.Background(), "moltin_customer:42")
	if err != nil {
		t.Fatalf("customer id not persisted: %v", err)
	}
	if customerID != "customer-1" {
		t.Errorf("customer id = %q, want customer-1", customerID)
	}
	if env.customers[0] != "Ivan Petrov <a@b.com>" {
		t.Errorf("customer = %q, want Ivan Petrov <a@b.com>", env.customers[0])
	}
	if len(env.checkouts) != 1 || env.checkouts[0].LastName != "Petrov" {
		t.Errorf("checkouts = %+v", env.checkouts)
	}
	if got := env.state(); got != model.StateMainMenu {
		t.Errorf("state = %q, want MAIN_MENU", got)
	}
	if reply := env.messenger.last(); !strings.HasPrefix(reply.Text, emailAcceptedText) || len(reply.Keyboard) == 0 {
		t.Errorf("reply = %+v, want confirmation with the product menu", reply)
	}
}

func TestExistingCustomerIsReused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sessions.Save(ctx, &model.Session{UserID: testUser, State: model.StateWaitingEmail, CustomerID: "customer-old"})

	env.mustDispatch(textEvent("a@b.com"))

	if len(env.customers) != 0 {
		t.Errorf("created %d customers, want 0", len(env.customers))
	}
	if len(env.checkouts) != 1 {
		t.Errorf("checkouts = %d, want 1", len(env.checkouts))
	}
}

func TestCheckoutFailureKeepsCustomer(t *testing.T) {
	env := newTestEnv(t)
	env.setState(model.StateWaitingEmail)
	env.shop.CheckoutFunc = func(ctx context.Context, cartID, customerID string, buyer model.Buyer) error {
		return model.NewRemoteAPIError(400, []byte("cart empty"))
	}

	err := env.dispatch(textEvent("a@b.com"))

	var apiErr *model.RemoteAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Dispatch() error = %v, want *model.RemoteAPIError", err)
	}
	if got := env.state(); got != model.StateWaitingEmail {
		t.Errorf("state = %q, want WAITING_EMAIL", got)
	}
	if id, _ := env.kv.Get(context.Background(), store.CustomerKey(testUser)); id != "customer-1" {
		t.Errorf("customer id = %q, want it kept for the retry", id)
	}
}

func TestBackendErrorKeepsState(t *testing.T) {
	env := newTestEnv(t)
	env.setState(model.StateMainMenu)
	env.shop.GetProductFunc = func(ctx context.Context, id string) (*model.Product, error) {
		return nil, model.NewRemoteAPIError(500, []byte("boom"))
	}

	err := env.dispatch(pressEvent(t, Callback{Action: ActionProduct, ID: "p-1"}))

	if !errors.Is(err, model.ErrUpstream) {
		t.Errorf("Dispatch() error = %v, want ErrUpstream", err)
	}
	if len(env.messenger.ops) != 0 {
		t.Errorf("ops = %v, want none", env.messenger.ops)
	}
	if got := env.state(); got != model.StateMainMenu {
		t.Errorf("state = %q, want MAIN_MENU", got)
	}
}

func TestSendFailureKeepsState(t *testing.T) {
	env := newTestEnv(t)
	env.setState(model.StateMainMenu)
	env.messenger.sendErr = errors.New("telegram: Forbidden: bot was blocked by the user")

	if err := env.dispatch(pressEvent(t, Callback{Action: ActionCart})); err == nil {
		t.Fatal("Dispatch() should fail when the reply cannot be sent")
	}
	if got := env.state(); got != model.StateMainMenu {
		t.Errorf("state = %q, want MAIN_MENU", got)
	}
}

func TestDispatchRecordsOutcomes(t *testing.T) {
	env := newTestEnv(t)

	env.mustDispatch(startEvent())
	env.dispatch(textEvent("hello"))
	env.mustDispatch(pressEvent(t, Callback{Action: ActionCart}))
	env.mustDispatch(pressEvent(t, Callback{Action: ActionCheckout}))
	env.mustDispatch(textEvent("nope"))

	want := `
# HELP shopbot_events_total Chat events dispatched through the conversation state machine.
# TYPE shopbot_events_total counter
shopbot_events_total{kind="callback",outcome="ok"} 2
shopbot_events_total{kind="start",outcome="ok"} 1
shopbot_events_total{kind="text",outcome="recovered"} 1
shopbot_events_total{kind="text",outcome="unhandled"} 1
`
	if err := testutil.GatherAndCompare(env.metrics.Registry(), strings.NewReader(want), "shopbot_events_total"); err != nil {
		t.Error(err)
	}
}
