package guard

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is the cancellation cause of a navigation replaced by a newer one
var ErrSuperseded = errors.New("navigation superseded")

// Tracker hands out one live cancellation token per client. Beginning a new
// navigation for a client cancels the previous one.
type Tracker struct {
	mu     sync.Mutex
	active map[string]*Token
	seq    uint64
}

// NewTracker creates an empty Tracker
func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*Token)}
}

// Token scopes one navigation
type Token struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	tracker  *Tracker
	clientID string
	seq      uint64
}

// Begin starts a navigation for clientID. An empty clientID is never tracked.
func (t *Tracker) Begin(parent context.Context, clientID string) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	tok := &Token{ctx: ctx, cancel: cancel, tracker: t, clientID: clientID}

	if clientID == "" {
		return tok
	}

	t.mu.Lock()
	t.seq++
	tok.seq = t.seq
	prev := t.active[clientID]
	t.active[clientID] = tok
	t.mu.Unlock()

	if prev != nil {
		prev.cancel(ErrSuperseded)
	}
	return tok
}

// Len returns the number of clients with a navigation in flight
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Context is cancelled when the navigation is superseded or finished
func (tok *Token) Context() context.Context {
	return tok.ctx
}

// Stale reports whether a newer navigation replaced this one
func (tok *Token) Stale() bool {
	return errors.Is(context.Cause(tok.ctx), ErrSuperseded)
}

// Done releases the token
func (tok *Token) Done() {
	if tok.clientID != "" {
		t := tok.tracker
		t.mu.Lock()
		if cur, ok := t.active[tok.clientID]; ok && cur.seq == tok.seq {
			delete(t.active, tok.clientID)
		}
		t.mu.Unlock()
	}
	tok.cancel(context.Canceled)
}
