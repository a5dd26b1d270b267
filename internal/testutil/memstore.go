package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crsh/server/internal/game/card"
	"github.com/crsh/server/internal/game/player"
	"github.com/crsh/server/internal/storage/postgres"
)

// MemStore is an in-memory coordinator.Store for tests that do not
// need a database.
type MemStore struct {
	mu         sync.Mutex
	records    map[string]postgres.PlayerRecord
	passwords  map[string]string
	decks      map[string]card.Deck
	nextPlayer int64
	nextCard   int64
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		records:   make(map[string]postgres.PlayerRecord),
		passwords: make(map[string]string),
		decks:     make(map[string]card.Deck),
	}
}

// SeedDeck installs a deck with the given number of black and white
// cards, ids assigned sequentially.
func (s *MemStore) SeedDeck(name string, blacks, whites int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deck := card.Deck{Name: name}
	for i := 0; i < blacks; i++ {
		s.nextCard++
		deck.Black = append(deck.Black, card.Card{
			ID: card.ID(s.nextCard), Content: fmt.Sprintf("%s prompt %d", name, i), Color: card.ColorBlack,
		})
	}
	for i := 0; i < whites; i++ {
		s.nextCard++
		deck.White = append(deck.White, card.Card{
			ID: card.ID(s.nextCard), Content: fmt.Sprintf("%s answer %d", name, i), Color: card.ColorWhite,
		})
	}
	s.decks[name] = deck
}

func (s *MemStore) Register(_ context.Context, username, email, password string) (postgres.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[username]; ok {
		return postgres.PlayerRecord{}, postgres.ErrPlayerExists
	}
	s.nextPlayer++
	rec := postgres.PlayerRecord{
		ID: player.ID(s.nextPlayer), Username: username, Email: email, CreatedAt: time.Now(),
	}
	s.records[username] = rec
	s.passwords[username] = password
	return rec, nil
}

func (s *MemStore) Authenticate(_ context.Context, identifier, password string) (postgres.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identifier]
	if !ok {
		return postgres.PlayerRecord{}, postgres.ErrPlayerNotFound
	}
	if s.passwords[identifier] != password {
		return postgres.PlayerRecord{}, postgres.ErrInvalidCredentials
	}
	return rec, nil
}

func (s *MemStore) GetDeck(_ context.Context, name string) (card.Deck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deck, ok := s.decks[name]
	if !ok {
		return card.Deck{}, postgres.ErrDeckNotFound
	}
	return deck, nil
}

func (s *MemStore) AddCard(_ context.Context, deckName string, color card.Color, content string) (card.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCard++
	cd := card.Card{ID: card.ID(s.nextCard), Content: content, Color: color}
	deck := s.decks[deckName]
	deck.Name = deckName
	if color == card.ColorBlack {
		deck.Black = append(deck.Black, cd)
	} else {
		deck.White = append(deck.White, cd)
	}
	s.decks[deckName] = deck
	return cd, nil
}

func (s *MemStore) DeleteCard(_ context.Context, deckName string, id card.ID) (card.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deck, ok := s.decks[deckName]
	if !ok {
		return card.Card{}, postgres.ErrCardNotFound
	}
	for i, cd := range deck.Black {
		if cd.ID == id {
			deck.Black = append(deck.Black[:i], deck.Black[i+1:]...)
			s.decks[deckName] = deck
			return cd, nil
		}
	}
	for i, cd := range deck.White {
		if cd.ID == id {
			deck.White = append(deck.White[:i], deck.White[i+1:]...)
			s.decks[deckName] = deck
			return cd, nil
		}
	}
	return card.Card{}, postgres.ErrCardNotFound
}
