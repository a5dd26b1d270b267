package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crsh/server/internal/game/card"
)

// ErrDeckNotFound is returned when a deck name matches no cards.
var ErrDeckNotFound = errors.New("deck not found")

// ErrCardNotFound is returned when a card lookup yields no results.
var ErrCardNotFound = errors.New("card not found")

// DeckRepository provides card and deck persistence operations.
type DeckRepository struct {
	db *pgxpool.Pool
}

// NewDeckRepository creates a DeckRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewDeckRepository(db *pgxpool.Pool) *DeckRepository {
	return &DeckRepository{db: db}
}

// GetDeck loads every card belonging to the named deck.
//
// Postcondition: Returns a Deck with its black and white cards in id
// order, or ErrDeckNotFound if the deck has no cards.
func (r *DeckRepository) GetDeck(ctx context.Context, name string) (card.Deck, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, color, content
		 FROM cards WHERE deck_name = $1
		 ORDER BY id`,
		name,
	)
	if err != nil {
		return card.Deck{}, fmt.Errorf("querying deck: %w", err)
	}
	defer rows.Close()

	deck := card.Deck{Name: name}
	for rows.Next() {
		var cd card.Card
		if err := rows.Scan(&cd.ID, &cd.Color, &cd.Content); err != nil {
			return card.Deck{}, fmt.Errorf("scanning card: %w", err)
		}
		switch cd.Color {
		case card.ColorBlack:
			deck.Black = append(deck.Black, cd)
		case card.ColorWhite:
			deck.White = append(deck.White, cd)
		}
	}
	if err := rows.Err(); err != nil {
		return card.Deck{}, fmt.Errorf("reading deck: %w", err)
	}
	if len(deck.Black) == 0 && len(deck.White) == 0 {
		return card.Deck{}, ErrDeckNotFound
	}
	return deck, nil
}

// ListDeckNames returns the distinct deck names in the card store.
func (r *DeckRepository) ListDeckNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT deck_name FROM cards ORDER BY deck_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying deck names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning deck name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading deck names: %w", err)
	}
	return names, nil
}

// AddCard inserts a new card into the named deck.
//
// Precondition: content must be non-empty; color must be ColorBlack or
// ColorWhite.
// Postcondition: Returns the stored card with its assigned id.
func (r *DeckRepository) AddCard(ctx context.Context, deckName string, color card.Color, content string) (card.Card, error) {
	cd := card.Card{Content: content, Color: color}
	err := r.db.QueryRow(ctx,
		`INSERT INTO cards (deck_name, color, content)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		deckName, color, content,
	).Scan(&cd.ID)
	if err != nil {
		return card.Card{}, fmt.Errorf("inserting card: %w", err)
	}
	return cd, nil
}

// DeleteCard removes a card from the named deck.
//
// Postcondition: Returns the removed card, or ErrCardNotFound if the
// deck holds no card with that id.
func (r *DeckRepository) DeleteCard(ctx context.Context, deckName string, id card.ID) (card.Card, error) {
	cd := card.Card{ID: id}
	err := r.db.QueryRow(ctx,
		`DELETE FROM cards
		 WHERE deck_name = $1 AND id = $2
		 RETURNING color, content`,
		deckName, id,
	).Scan(&cd.Color, &cd.Content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return card.Card{}, ErrCardNotFound
		}
		return card.Card{}, fmt.Errorf("deleting card: %w", err)
	}
	return cd, nil
}
