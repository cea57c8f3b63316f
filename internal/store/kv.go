// Package store persists bot state in a string key-value store.
// Production uses Redis; tests and local runs can use the in-memory store.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// KV is the minimal key-value contract the bot needs.
// Values are plain strings; no expiry is set on any key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
