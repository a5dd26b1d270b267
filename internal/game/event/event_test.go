package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crsh/server/internal/game/card"
	"github.com/crsh/server/internal/game/player"
)

func decode(t *testing.T, e Event) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(e, &m))
	return m
}

func TestPlayerJoined_Shape(t *testing.T) {
	m := decode(t, PlayerJoined(player.Player{ID: 7, Name: "Ada"}))
	assert.Equal(t, "player_joined", m["type"])
	p, ok := m["player"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), p["id"])
	assert.Equal(t, "Ada", p["name"])
}

func TestCardEvents_Shape(t *testing.T) {
	c := card.Card{ID: 42, Content: "A windmill full of corpses.", Color: card.ColorWhite}

	m := decode(t, AddCardToHand(c))
	assert.Equal(t, "addCardToHand", m["type"])
	assert.Equal(t, float64(42), m["card_id"])
	assert.Equal(t, c.Content, m["card_content"])

	m = decode(t, NewBlack(c))
	assert.Equal(t, "newBlack", m["type"])

	m = decode(t, RevealCard(c))
	assert.Equal(t, "revealCard", m["type"])
	assert.Equal(t, c.Content, m["card_content"])

	m = decode(t, RemoveCard(42))
	assert.Equal(t, "removeCard", m["type"])
	assert.Equal(t, float64(42), m["card_id"])

	m = decode(t, CzarChoice(42))
	assert.Equal(t, "czar_choice", m["type"])
}

func TestEveryoneSubmitted_KeepsOrder(t *testing.T) {
	m := decode(t, EveryoneSubmitted([]card.ID{9, 3, 5}))
	assert.Equal(t, "everyone_submitted", m["type"])
	assert.Equal(t, []any{float64(9), float64(3), float64(5)}, m["card_ids"])
}

func TestEveryoneSubmitted_EmptyIsArray(t *testing.T) {
	assert.JSONEq(t, `{"type":"everyone_submitted","card_ids":[]}`, string(EveryoneSubmitted(nil)))
}

func TestRoundAndCzarEvents(t *testing.T) {
	m := decode(t, RoundWon(3))
	assert.Equal(t, "roundWon", m["type"])
	assert.Equal(t, float64(3), m["player_id"])

	m = decode(t, PlayerWon(3))
	assert.Equal(t, "playerWon", m["type"])

	m = decode(t, PlayerLeft(4))
	assert.Equal(t, "player_left", m["type"])
	assert.Equal(t, float64(4), m["player_id"])

	assert.JSONEq(t, `{"type":"newRound"}`, string(NewRound()))
	assert.JSONEq(t, `{"type":"matchStarted"}`, string(MatchStarted()))
	assert.JSONEq(t, `{"type":"newCzar","czar":2}`, string(NewCzar(2)))
}
