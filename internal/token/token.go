// Package token keeps the backend bearer token fresh.
//
// The token and its expiry live in the shared key-value store, so every bot
// process sees the same token and a restart does not force a renewal.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"shopbot/internal/metrics"
	"shopbot/internal/moltin"
	"shopbot/internal/store"
)

// Store keys for the process-wide token.
const (
	ValueKey  = "MOLTIN_API_TOKEN"
	ExpiryKey = "MOLTIN_API_TOKEN_EXPIRE_TIME"
)

// ExpiryLayout is the stored expiry format: DD/MM/YY HH:MM:SS in local time.
const ExpiryLayout = "02/01/06 15:04:05"

// expiryMargin is subtracted from the backend lifetime so a token is never
// used in its last seconds.
const expiryMargin = 10 * time.Second

// renewTimeout bounds a shared renewal, which no single caller's context owns.
const renewTimeout = 30 * time.Second

// Fetcher requests a new token from the backend. *moltin.Client implements it.
type Fetcher interface {
	RequestToken(ctx context.Context) (*moltin.TokenResponse, error)
}

// Manager hands out a token whose expiry is strictly in the future.
type Manager struct {
	kv      store.KV
	fetcher Fetcher
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	group   singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics counts renewals.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a token manager over kv.
func NewManager(kv store.KV, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		kv:      kv,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns the stored token, renewing it first when it is missing,
// unparseable or expired. Concurrent renewals in one process share a single
// backend request.
func (m *Manager) Token(ctx context.Context) (string, error) {
	token, ok, err := m.cached(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		return token, nil
	}

	ch := m.group.DoChan(ValueKey, func() (interface{}, error) {
		// The flight outlives any one waiter; a cancelled caller must not
		// fail the renewal for the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), renewTimeout)
		defer cancel()

		// Another caller may have finished a renewal while we waited.
		token, ok, err := m.cached(rctx)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		return m.renew(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Expiry returns the stored expiry, or the zero time when none is stored.
func (m *Manager) Expiry(ctx context.Context) (time.Time, error) {
	raw, err := m.kv.Get(ctx, ExpiryKey)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading token expiry: %w", err)
	}
	expiresAt, err := time.ParseInLocation(ExpiryLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, nil
	}
	return expiresAt, nil
}

// cached returns the stored token when both keys are present and the
// expiry is still in the future.
func (m *Manager) cached(ctx context.Context) (string, bool, error) {
	token, err := m.kv.Get(ctx, ValueKey)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading token: %w", err)
	}

	expiresAt, err := m.Expiry(ctx)
	if err != nil {
		return "", false, err
	}
	if expiresAt.IsZero() || !expiresAt.After(m.now()) {
		return "", false, nil
	}
	return token, true, nil
}

func (m *Manager) renew(ctx context.Context) (string, error) {
	resp, err := m.fetcher.RequestToken(ctx)
	if err != nil {
		return "", fmt.Errorf("renewing access token: %w", err)
	}

	expiresAt := m.now().Add(time.Duration(resp.ExpiresIn)*time.Second - expiryMargin)
	if err := m.kv.Set(ctx, ValueKey, resp.AccessToken); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}
	if err := m.kv.Set(ctx, ExpiryKey, expiresAt.In(time.Local).Format(ExpiryLayout)); err != nil {
		return "", fmt.Errorf("storing token expiry: %w", err)
	}

	m.metrics.TokenRenewed()
	m.logger.Info("access token renewed",
		slog.Time("expires_at", expiresAt),
		slog.Int("lifetime_seconds", resp.ExpiresIn),
	)
	return resp.AccessToken, nil
}
