package session

import (
	"github.com/google/uuid"

	"github.com/crsh/server/internal/game/player"
)

// Token is the opaque credential identifying a logged-in player.
type Token uuid.UUID

// NewToken mints a fresh random token.
func NewToken() Token {
	return Token(uuid.New())
}

// ParseToken parses the canonical string form of a token.
func ParseToken(s string) (Token, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Token{}, err
	}
	return Token(u), nil
}

// String returns the canonical string form of the token.
func (t Token) String() string {
	return uuid.UUID(t).String()
}

// Registry maps live session tokens to player identities.
//
// Registry is NOT safe for concurrent use; it is owned and mutated
// only by the coordinator loop.
type Registry struct {
	tokens map[Token]player.ID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[Token]player.ID)}
}

// Issue invalidates every existing token for id, mints a fresh token,
// and maps it to id. At most one token per player should exist, but
// all stale ones are purged regardless.
//
// Postcondition: Resolve(returned token) yields id; any token
// previously issued for id no longer resolves.
func (r *Registry) Issue(id player.ID) Token {
	for t, p := range r.tokens {
		if p == id {
			delete(r.tokens, t)
		}
	}
	t := NewToken()
	r.tokens[t] = id
	return t
}

// Resolve returns the player id bound to the token.
func (r *Registry) Resolve(t Token) (player.ID, bool) {
	id, ok := r.tokens[t]
	return id, ok
}

// Revoke removes the token mapping, logging the player out.
func (r *Registry) Revoke(t Token) {
	delete(r.tokens, t)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	return len(r.tokens)
}
