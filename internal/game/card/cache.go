package card

import (
	"fmt"

	"github.com/crsh/server/internal/game/rng"
)

// deckEntry tracks one cached deck: how many rooms reference it and
// which card ids it contributed to the flat map.
type deckEntry struct {
	refcount int
	black    []ID
	white    []ID
}

// DeckCache is the ref-counted pool of card content shared by all
// active matches. Rooms referencing the same deck name share one entry.
//
// DeckCache is NOT safe for concurrent use; it is owned and mutated
// only by the coordinator loop.
//
// Invariant: every id in an entry's black/white lists is a key in the
// flat card map, and a deck's ids are purged exactly when its refcount
// reaches zero. Violations are programming errors and panic.
type DeckCache struct {
	src   rng.Source
	decks map[string]*deckEntry
	cards map[ID]Card
}

// NewDeckCache creates an empty DeckCache drawing randomness from src.
//
// Precondition: src must be non-nil.
func NewDeckCache(src rng.Source) *DeckCache {
	return &DeckCache{
		src:   src,
		decks: make(map[string]*deckEntry),
		cards: make(map[ID]Card),
	}
}

// AddDeck makes deck's cards resident in the cache. If the deck name is
// already cached the refcount is incremented and deck's content is
// ignored; rooms sharing a deck name share storage.
//
// Panics if an inserted card id is already present in the flat map
// under another deck: ids are globally unique and a collision means
// corrupted storage, not a recoverable condition.
func (c *DeckCache) AddDeck(deck Deck) {
	if entry, ok := c.decks[deck.Name]; ok {
		entry.refcount++
		return
	}

	entry := &deckEntry{refcount: 1}
	for _, cd := range deck.Black {
		c.insert(deck.Name, Card{ID: cd.ID, Content: cd.Content, Color: ColorBlack})
		entry.black = append(entry.black, cd.ID)
	}
	for _, cd := range deck.White {
		c.insert(deck.Name, Card{ID: cd.ID, Content: cd.Content, Color: ColorWhite})
		entry.white = append(entry.white, cd.ID)
	}
	c.decks[deck.Name] = entry
}

// RemoveDeck drops one reference to the named deck. At refcount zero
// the entry and every one of its card ids are removed atomically.
//
// Panics if the deck is not cached or one of its ids is missing from
// the flat map.
func (c *DeckCache) RemoveDeck(name string) {
	entry, ok := c.decks[name]
	if !ok {
		panic(fmt.Sprintf("card: RemoveDeck on uncached deck %q", name))
	}

	entry.refcount--
	if entry.refcount > 0 {
		return
	}

	for _, id := range entry.black {
		c.remove(name, id)
	}
	for _, id := range entry.white {
		c.remove(name, id)
	}
	delete(c.decks, name)
}

// Card looks up a card by id in the flat map.
func (c *DeckCache) Card(id ID) (Card, bool) {
	cd, ok := c.cards[id]
	return cd, ok
}

// Cached reports whether the named deck is resident.
func (c *DeckCache) Cached(name string) bool {
	_, ok := c.decks[name]
	return ok
}

// RandomBlack draws a random black card from the given deck names.
// Deck choice is weighted by each deck's black card count, then the
// card is drawn uniformly within the chosen deck.
//
// Postcondition: Returns (card, true) with the card belonging to one
// of activeDecks, or (zero, false) when no active deck holds a black
// card.
func (c *DeckCache) RandomBlack(activeDecks []string) (Card, bool) {
	return c.randomCard(activeDecks, ColorBlack)
}

// RandomWhite draws a random white card from the given deck names,
// weighted like RandomBlack.
func (c *DeckCache) RandomWhite(activeDecks []string) (Card, bool) {
	return c.randomCard(activeDecks, ColorWhite)
}

func (c *DeckCache) randomCard(activeDecks []string, color Color) (Card, bool) {
	weights := make([]int, len(activeDecks))
	for i, name := range activeDecks {
		if entry, ok := c.decks[name]; ok {
			weights[i] = len(entry.ids(color))
		}
	}

	deckIdx, ok := weightedIndex(c.src, weights)
	if !ok {
		return Card{}, false
	}

	ids := c.decks[activeDecks[deckIdx]].ids(color)
	id := ids[c.src.Intn(len(ids))]
	cd, ok := c.cards[id]
	if !ok {
		return Card{}, false
	}
	return cd, true
}

// InsertCard adds a single card to a resident deck entry, keeping a
// live cache in step with a deck-builder edit. A no-op when the deck
// is not cached.
//
// Panics on id collision like AddDeck.
func (c *DeckCache) InsertCard(deckName string, cd Card) {
	entry, ok := c.decks[deckName]
	if !ok {
		return
	}
	c.insert(deckName, cd)
	if cd.Color == ColorBlack {
		entry.black = append(entry.black, cd.ID)
	} else {
		entry.white = append(entry.white, cd.ID)
	}
}

// DeleteCard removes a single card from a resident deck entry. A no-op
// when the deck is not cached or the id does not belong to it.
func (c *DeckCache) DeleteCard(deckName string, id ID) {
	entry, ok := c.decks[deckName]
	if !ok {
		return
	}
	if removed := entry.drop(id); !removed {
		return
	}
	delete(c.cards, id)
}

func (c *DeckCache) insert(deckName string, cd Card) {
	if existing, ok := c.cards[cd.ID]; ok {
		panic(fmt.Sprintf("card: id %d from deck %q collides with cached card %q", cd.ID, deckName, existing.Content))
	}
	c.cards[cd.ID] = cd
}

func (c *DeckCache) remove(deckName string, id ID) {
	if _, ok := c.cards[id]; !ok {
		panic(fmt.Sprintf("card: deck %q lists id %d which is absent from the flat map", deckName, id))
	}
	delete(c.cards, id)
}

func (e *deckEntry) ids(color Color) []ID {
	if color == ColorBlack {
		return e.black
	}
	return e.white
}

// drop removes id from whichever list holds it, reporting whether it
// was present.
func (e *deckEntry) drop(id ID) bool {
	for i, existing := range e.black {
		if existing == id {
			e.black = append(e.black[:i], e.black[i+1:]...)
			return true
		}
	}
	for i, existing := range e.white {
		if existing == id {
			e.white = append(e.white[:i], e.white[i+1:]...)
			return true
		}
	}
	return false
}
