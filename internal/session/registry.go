package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AlreadyHeldError reports that another actor currently owns the key.
type AlreadyHeldError struct {
	Key    string
	Holder string
}

func (e *AlreadyHeldError) Error() string {
	return fmt.Sprintf("session %s already held by %s", e.Key, e.Holder)
}

// Token proves ownership of an acquired session key. The zero Token is
// valid input to Release and is a no-op.
type Token struct {
	key   string
	nonce string
}

// Key returns the session key the token guards.
func (t Token) Key() string {
	return t.key
}

func (t Token) zero() bool {
	return t.key == "" && t.nonce == ""
}

// Registry provides per-key mutual exclusion for verification flows.
// At most one live session exists for a key at any time.
type Registry interface {
	// TryAcquire atomically claims the key for holder. When the key
	// is already claimed it returns an AlreadyHeldError carrying the
	// current holder's identity.
	TryAcquire(ctx context.Context, key, holder string) (Token, error)
	// Release frees the key. Idempotent: releasing twice, or releasing
	// a zero token, is a no-op. Must be invoked on every exit path of
	// the operation that acquired the token.
	Release(ctx context.Context, token Token)
}

type memoryEntry struct {
	holder     string
	nonce      string
	acquiredAt time.Time
}

// MemoryRegistry is the single-instance Registry backed by a mutex
// guarded map with insert-if-absent semantics.
type MemoryRegistry struct {
	mu   sync.Mutex
	held map[string]memoryEntry
}

// NewMemoryRegistry constructs an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{held: make(map[string]memoryEntry)}
}

// TryAcquire claims key for holder.
func (r *MemoryRegistry) TryAcquire(_ context.Context, key, holder string) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.held[key]; ok {
		return Token{}, &AlreadyHeldError{Key: key, Holder: current.holder}
	}
	nonce := uuid.NewString()
	r.held[key] = memoryEntry{holder: holder, nonce: nonce, acquiredAt: time.Now()}
	return Token{key: key, nonce: nonce}, nil
}

// Release frees the key claimed by token.
func (r *MemoryRegistry) Release(_ context.Context, token Token) {
	if token.zero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// Only the acquiring token may free the key; a stale double
	// release must not evict a newer session.
	if current, ok := r.held[token.key]; ok && current.nonce == token.nonce {
		delete(r.held, token.key)
	}
}
