// Package event builds the JSON-tagged messages delivered to player
// connections. Field names are part of the client protocol.
package event

import (
	"encoding/json"

	"github.com/crsh/server/internal/game/card"
	"github.com/crsh/server/internal/game/player"
)

// Event is an encoded outbound message ready to push to a connection.
type Event []byte

type playerJoined struct {
	Type   string        `json:"type"`
	Player player.Player `json:"player"`
}

type playerLeft struct {
	Type     string    `json:"type"`
	PlayerID player.ID `json:"player_id"`
}

type cardEvent struct {
	Type        string  `json:"type"`
	CardID      card.ID `json:"card_id"`
	CardContent string  `json:"card_content"`
}

type cardIDEvent struct {
	Type   string  `json:"type"`
	CardID card.ID `json:"card_id"`
}

type cardIDsEvent struct {
	Type    string    `json:"type"`
	CardIDs []card.ID `json:"card_ids"`
}

type playerIDEvent struct {
	Type     string    `json:"type"`
	PlayerID player.ID `json:"player_id"`
}

type czarEvent struct {
	Type string    `json:"type"`
	Czar player.ID `json:"czar"`
}

type bareEvent struct {
	Type string `json:"type"`
}

// PlayerJoined announces p to the players already seated in the match.
func PlayerJoined(p player.Player) Event {
	return encode(playerJoined{Type: "player_joined", Player: p})
}

// PlayerLeft announces that the player left the match.
func PlayerLeft(id player.ID) Event {
	return encode(playerLeft{Type: "player_left", PlayerID: id})
}

// AddCardToHand delivers a freshly dealt white card to its owner.
func AddCardToHand(c card.Card) Event {
	return encode(cardEvent{Type: "addCardToHand", CardID: c.ID, CardContent: c.Content})
}

// RemoveCard tells the owner a card has left their hand.
func RemoveCard(id card.ID) Event {
	return encode(cardIDEvent{Type: "removeCard", CardID: id})
}

// MatchStarted announces the transition out of the lobby.
func MatchStarted() Event {
	return encode(bareEvent{Type: "matchStarted"})
}

// NewBlack announces the round's prompt card.
func NewBlack(c card.Card) Event {
	return encode(cardEvent{Type: "newBlack", CardID: c.ID, CardContent: c.Content})
}

// EveryoneSubmitted carries the submitted card ids, in seat order with
// the czar excluded.
func EveryoneSubmitted(ids []card.ID) Event {
	if ids == nil {
		ids = []card.ID{}
	}
	return encode(cardIDsEvent{Type: "everyone_submitted", CardIDs: ids})
}

// RevealCard shows one submitted card to the whole match.
func RevealCard(c card.Card) Event {
	return encode(cardEvent{Type: "revealCard", CardID: c.ID, CardContent: c.Content})
}

// CzarChoice announces the card the czar picked.
func CzarChoice(id card.ID) Event {
	return encode(cardIDEvent{Type: "czar_choice", CardID: id})
}

// RoundWon announces the round winner.
func RoundWon(id player.ID) Event {
	return encode(playerIDEvent{Type: "roundWon", PlayerID: id})
}

// PlayerWon announces that a player reached the points target.
func PlayerWon(id player.ID) Event {
	return encode(playerIDEvent{Type: "playerWon", PlayerID: id})
}

// NewRound announces the start of the next round.
func NewRound() Event {
	return encode(bareEvent{Type: "newRound"})
}

// NewCzar announces the next round's judge.
func NewCzar(id player.ID) Event {
	return encode(czarEvent{Type: "newCzar", Czar: id})
}

func encode(v any) Event {
	b, err := json.Marshal(v)
	if err != nil {
		// Every payload above is a flat struct of marshalable fields.
		panic("event: marshal failed: " + err.Error())
	}
	return Event(b)
}
