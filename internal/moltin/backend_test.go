package moltin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeBackend is an in-memory stand-in for the Moltin API.
// Adding a product already in the cart increments its quantity, like the real backend.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	token     string
	products  map[string]Product
	carts     map[string][]CartItem
	customers []customerInput
	checkouts []checkoutInput
	images    map[string][]byte // file ID → bytes
	calls     map[string]int    // "METHOD pattern" → count
	nextID    int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:        t,
		token:    "test-token",
		products: make(map[string]Product),
		carts:    make(map[string][]CartItem),
		images:   make(map[string][]byte),
		calls:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/access_token", b.handleToken)
	mux.HandleFunc("GET /v2/products", b.auth(b.handleListProducts))
	mux.HandleFunc("GET /v2/products/{id}", b.auth(b.handleGetProduct))
	mux.HandleFunc("GET /v2/carts/{cart}/items", b.auth(b.handleListCart))
	mux.HandleFunc("POST /v2/carts/{cart}/items", b.auth(b.handleAddToCart))
	mux.HandleFunc("DELETE /v2/carts/{cart}/items", b.auth(b.handleClearCart))
	mux.HandleFunc("DELETE /v2/carts/{cart}/items/{item}", b.auth(b.handleRemoveItem))
	mux.HandleFunc("POST /v2/customers", b.auth(b.handleCreateCustomer))
	mux.HandleFunc("POST /v2/carts/{cart}/checkout", b.auth(b.handleCheckout))
	mux.HandleFunc("GET /v2/files/{id}", b.auth(b.handleGetFile))
	mux.HandleFunc("GET /cdn/{id}", b.handleDownload)

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pattern := mux.Handler(r)
		b.mu.Lock()
		b.calls[pattern]++
		b.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: b.srv.URL, ClientID: "client-123", HTTPClient: b.srv.Client()})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return c
}

func (b *fakeBackend) addProduct(id, name string, price int64, imageID string) {
	p := Product{
		ID:          id,
		Type:        "product",
		Name:        name,
		Description: name + " description",
		Price:       []Price{{Amount: price, Currency: "USD"}},
	}
	if imageID != "" {
		p.Relationships = &ProductRelationships{
			MainImage: &Relationship{Data: &RelationshipData{Type: "main_image", ID: imageID}},
		}
	}
	b.products[id] = p
}

func (b *fakeBackend) callCount(pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[pattern]
}

func (b *fakeBackend) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+b.token {
			writeTestJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"errors": []map[string]string{{"title": "Unauthorized"}},
			})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		next(w, r)
	}
}

func (b *fakeBackend) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("client_id") != "client-123" || r.PostForm.Get("grant_type") != "implicit" {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid client"})
		return
	}
	writeTestJSON(w, http.StatusOK, TokenResponse{
		AccessToken: b.token,
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		Identifier:  "implicit",
	})
}

func (b *fakeBackend) handleListProducts(w http.ResponseWriter, r *http.Request) {
	resp := listResponse[Product]{Data: []Product{}}
	for _, p := range b.products {
		resp.Data = append(resp.Data, p)
	}
	writeTestJSON(w, http.StatusOK, resp)
}

func (b *fakeBackend) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := b.products[r.PathValue("id")]
	if !ok {
		writeTestJSON(w, http.StatusNotFound, map[string]interface{}{
			"errors": []map[string]string{{"title": "Not Found"}},
		})
		return
	}
	writeTestJSON(w, http.StatusOK, itemResponse[Product]{Data: p})
}

func (b *fakeBackend) handleListCart(w http.ResponseWriter, r *http.Request) {
	items := b.carts[r.PathValue("cart")]
	if items == nil {
		items = []CartItem{}
	}
	writeTestJSON(w, http.StatusOK, listResponse[CartItem]{Data: items})
}

func (b *fakeBackend) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req itemResponse[cartItemInput]
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Data.Type != "cart_item" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p, ok := b.products[req.Data.ID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	cartID := r.PathValue("cart")
	items := b.carts[cartID]
	merged := false
	for i := range items {
		if items[i].ProductID == p.ID {
			items[i].Quantity += req.Data.Quantity
			items[i].Value.Amount = items[i].UnitPrice.Amount * int64(items[i].Quantity)
			merged = true
		}
	}
	if !merged {
		b.nextID++
		items = append(items, CartItem{
			ID:        fmt.Sprintf("line-%d", b.nextID),
			Type:      "cart_item",
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  req.Data.Quantity,
			UnitPrice: Money{Amount: p.Price[0].Amount, Currency: "USD"},
			Value:     Money{Amount: p.Price[0].Amount * int64(req.Data.Quantity), Currency: "USD"},
		})
	}
	b.carts[cartID] = items
	writeTestJSON(w, http.StatusCreated, listResponse[CartItem]{Data: items})
}

func (b *fakeBackend) handleClearCart(w http.ResponseWriter, r *http.Request) {
	delete(b.carts, r.PathValue("cart"))
	writeTestJSON(w, http.StatusOK, listResponse[CartItem]{Data: []CartItem{}})
}

func (b *fakeBackend) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cart")
	kept := []CartItem{}
	for _, item := range b.carts[cartID] {
		if item.ID != r.PathValue("item") {
			kept = append(kept, item)
		}
	}
	b.carts[cartID] = kept
	writeTestJSON(w, http.StatusOK, listResponse[CartItem]{Data: kept})
}

func (b *fakeBackend) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req itemResponse[customerInput]
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.customers = append(b.customers, req.Data)
	writeTestJSON(w, http.StatusCreated, itemResponse[Customer]{Data: Customer{
		ID:    fmt.Sprintf("customer-%d", len(b.customers)),
		Type:  "customer",
		Name:  req.Data.Name,
		Email: req.Data.Email,
	}})
}

func (b *fakeBackend) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req itemResponse[checkoutInput]
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.checkouts = append(b.checkouts, req.Data)
	writeTestJSON(w, http.StatusCreated, map[string]interface{}{"data": map[string]string{"id": "order-1"}})
}

func (b *fakeBackend) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := b.images[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeTestJSON(w, http.StatusOK, itemResponse[File]{Data: File{
		ID:   id,
		Link: FileLink{Href: b.srv.URL + "/cdn/" + id},
	}})
}

func (b *fakeBackend) handleDownload(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	data, ok := b.images[r.PathValue("id")]
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func writeTestJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
