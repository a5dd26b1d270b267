package match

import "github.com/crsh/server/internal/game/player"

// Registry owns the set of named matches. Rooms are created at process
// start from configuration and are never destroyed.
//
// Registry is NOT safe for concurrent use; it is owned by the
// coordinator loop.
type Registry struct {
	byName map[string]*Match
	names  []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Match)}
}

// Add registers m under its name, replacing nothing: room names are
// unique by construction (config validation rejects duplicates).
func (r *Registry) Add(m *Match) {
	if _, exists := r.byName[m.Name()]; exists {
		return
	}
	r.byName[m.Name()] = m
	r.names = append(r.names, m.Name())
}

// Get returns the match with the given room name.
func (r *Registry) Get(name string) (*Match, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Names returns the room names in creation order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// FindSeat returns the match in which the player is currently seated.
// A player is a member of at most one room at a time.
func (r *Registry) FindSeat(id player.ID) (*Match, bool) {
	for _, name := range r.names {
		if m := r.byName[name]; m.IsSeated(id) {
			return m, true
		}
	}
	return nil, false
}
