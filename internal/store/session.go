package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"shopbot/internal/model"
)

// Key prefixes for per-user records.
const (
	customerKeyPrefix = "moltin_customer:"
	stateKeyPrefix    = "moltin_state:"
)

// CustomerKey returns the key holding the backend customer ID for a chat user.
func CustomerKey(userID int64) string {
	return customerKeyPrefix + strconv.FormatInt(userID, 10)
}

// StateKey returns the key holding the conversation state for a chat user.
func StateKey(userID int64) string {
	return stateKeyPrefix + strconv.FormatInt(userID, 10)
}

// Sessions maps model.Session records onto KV keys.
// Writes are last-write-wins; there is no optimistic concurrency check.
type Sessions struct {
	kv KV
}

// NewSessions creates a session repository over kv.
func NewSessions(kv KV) *Sessions {
	return &Sessions{kv: kv}
}

// Load returns the session for userID. Unknown users get a fresh session
// in model.StateNone; this is not an error.
func (s *Sessions) Load(ctx context.Context, userID int64) (*model.Session, error) {
	sess := &model.Session{UserID: userID}

	state, err := s.kv.Get(ctx, StateKey(userID))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("loading state: %w", err)
	default:
		sess.State = model.State(state)
		if !sess.State.Valid() {
			// Unknown values (e.g. from an older release) restart the funnel.
			sess.State = model.StateNone
		}
	}

	customerID, err := s.kv.Get(ctx, CustomerKey(userID))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("loading customer id: %w", err)
	default:
		sess.CustomerID = customerID
	}

	return sess, nil
}

// Save writes the session state and, when set, the customer ID.
func (s *Sessions) Save(ctx context.Context, sess *model.Session) error {
	if err := s.kv.Set(ctx, StateKey(sess.UserID), string(sess.State)); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	if sess.CustomerID != "" {
		if err := s.SaveCustomerID(ctx, sess.UserID, sess.CustomerID); err != nil {
			return err
		}
	}
	return nil
}

// SaveCustomerID persists the customer ID on its own, right after the customer
// is created, so a later failure in the same event does not lose it.
func (s *Sessions) SaveCustomerID(ctx context.Context, userID int64, customerID string) error {
	if err := s.kv.Set(ctx, CustomerKey(userID), customerID); err != nil {
		return fmt.Errorf("saving customer id: %w", err)
	}
	return nil
}
