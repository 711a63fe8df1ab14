// Package identity obtains the editor's identity once after startup. The
// identity is display state only; analysis never depends on it.
package identity

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Identity struct {
	UserID    string
	Anonymous bool
}

type Bootstrap struct {
	token    string
	verifier *Verifier
	logger   *slog.Logger

	mu        sync.RWMutex
	current   *Identity
	ready     chan struct{}
	readyOnce sync.Once
	startOnce sync.Once
}

func New(token string, verifier *Verifier, logger *slog.Logger) *Bootstrap {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrap{
		token:    strings.TrimSpace(token),
		verifier: verifier,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Start resolves the identity once. Later calls are no-ops.
func (b *Bootstrap) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		id := b.resolve(ctx)
		b.mu.Lock()
		b.current = &id
		b.mu.Unlock()
		b.readyOnce.Do(func() { close(b.ready) })
	})
}

// Run starts the bootstrap and holds the identity until ctx ends, then tears
// it down.
func (b *Bootstrap) Run(ctx context.Context) error {
	b.Start(ctx)
	<-ctx.Done()
	b.Close()
	return nil
}

func (b *Bootstrap) Ready() <-chan struct{} {
	return b.ready
}

// Current returns the identity, or false while the bootstrap has not finished.
func (b *Bootstrap) Current() (Identity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return Identity{}, false
	}
	return *b.current, true
}

func (b *Bootstrap) Close() {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()
}

func (b *Bootstrap) resolve(ctx context.Context) Identity {
	if b.token != "" && b.verifier != nil {
		uid, err := b.verifier.UserID(b.token)
		if err == nil {
			b.logger.InfoContext(ctx, "identity ready", "mode", "token", "user_id", uid)
			return Identity{UserID: uid}
		}
		b.logger.WarnContext(ctx, "credential sign-in failed, using anonymous identity", "error", err)
	}
	id := Identity{UserID: "anon-" + uuid.NewString(), Anonymous: true}
	b.logger.InfoContext(ctx, "identity ready", "mode", "anonymous", "user_id", id.UserID)
	return id
}
