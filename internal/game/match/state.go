package match

import (
	"github.com/crsh/server/internal/game/card"
	"github.com/crsh/server/internal/game/player"
)

// GameState is the snapshot a player receives when (re)joining a
// match: who else is seated, their own hand, the current czar, and
// whether play has begun.
type GameState struct {
	Players []player.Player `json:"players"`
	Hand    []card.Card     `json:"hand"`
	Czar    *player.ID      `json:"czar"`
	Started bool            `json:"started"`
}

// State builds the snapshot as seen by forID. The player list excludes
// the viewer; the hand is the viewer's own and is empty for anyone
// not seated.
func (m *Match) State(forID player.ID) GameState {
	st := GameState{
		Players: make([]player.Player, 0, len(m.seats)),
		Started: m.progress == InProgress,
	}
	for _, seat := range m.seats {
		if seat.Player.ID == forID {
			st.Hand = append(st.Hand, seat.Hand...)
			continue
		}
		st.Players = append(st.Players, seat.Player)
	}
	if m.hasCzar {
		czar := m.czar
		st.Czar = &czar
	}
	return st
}
