// Package identity holds the user identifier issued at registration. The
// identifier lives in an explicit Context created at startup and handed to
// the components that need it; persistence happens through a Store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoIdentity is returned when no user has registered yet.
var ErrNoIdentity = errors.New("identity: no registered user")

// Store persists the identifier between runs.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, userID string) error
	Clear(ctx context.Context) error
}

// Context is the process-wide session identity.
type Context struct {
	mu     sync.RWMutex
	userID string
	store  Store
}

// Open creates a Context seeded from store.
func Open(ctx context.Context, store Store) (*Context, error) {
	userID, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: load: %w", err)
	}
	return &Context{userID: userID, store: store}, nil
}

// UserID returns the stored identifier, or "" before registration.
func (c *Context) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Require returns the identifier or ErrNoIdentity.
func (c *Context) Require() (string, error) {
	id := c.UserID()
	if id == "" {
		return "", ErrNoIdentity
	}
	return id, nil
}

// SetUserID records the identifier in memory and persists it. The in-memory
// value is kept even when persisting fails.
func (c *Context) SetUserID(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()

	if err := c.store.Save(ctx, userID); err != nil {
		return fmt.Errorf("identity: save: %w", err)
	}
	return nil
}

// Forget clears the identifier in memory and in the store.
func (c *Context) Forget(ctx context.Context) error {
	c.mu.Lock()
	c.userID = ""
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("identity: clear: %w", err)
	}
	return nil
}
