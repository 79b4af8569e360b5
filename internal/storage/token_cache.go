package storage

import (
	"context"
	"fmt"
)

const (
	// TokenCacheKey is the fixed key the raw bearer token is mirrored under.
	TokenCacheKey = "keycloak-token"

	// SessionRecordKey holds the provider's sealed refresh state.
	SessionRecordKey = "keycloak-session"
)

// TokenCache mirrors the current bearer token into a Store so other tools
// (or a later debugging session) can read it.
//
// The contract: the session holder writes on every token change and clears
// on logout. Nothing ever reads it back to decide whether a user is logged
// in; the holder's in-memory token is the only source of truth.
type TokenCache struct {
	rec *Record
}

func NewTokenCache(store Store) *TokenCache {
	return &TokenCache{rec: NewRecord(store, TokenCacheKey)}
}

// Read returns "" with no error when nothing is cached.
func (c *TokenCache) Read(ctx context.Context) (string, error) {
	raw, err := c.rec.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read token cache: %w", err)
	}
	return string(raw), nil
}

// Write stores token. An empty token clears the entry instead.
func (c *TokenCache) Write(ctx context.Context, token string) error {
	if token == "" {
		return c.Clear(ctx)
	}
	if err := c.rec.Save(ctx, []byte(token)); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	return nil
}

func (c *TokenCache) Clear(ctx context.Context) error {
	if err := c.rec.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear token cache: %w", err)
	}
	return nil
}
