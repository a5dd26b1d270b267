// Package card provides card content types and the ref-counted deck
// cache shared by all active matches.
package card

// ID is a globally unique card identifier assigned by the database.
type ID int64

// Color distinguishes prompt cards from answer cards.
type Color string

const (
	// ColorBlack marks a prompt card.
	ColorBlack Color = "black"
	// ColorWhite marks an answer card.
	ColorWhite Color = "white"
)

// Card is a single prompt or answer card. Color is carried explicitly
// on the card; it is never inferred from the id.
type Card struct {
	ID      ID     `json:"id"`
	Content string `json:"content"`
	Color   Color  `json:"-"`
}

// Deck is a named set of black and white cards as loaded from storage.
type Deck struct {
	Name  string `json:"deck_name"`
	Black []Card `json:"black_cards"`
	White []Card `json:"white_cards"`
}

// Cards returns the deck's cards of the given color.
func (d Deck) Cards(color Color) []Card {
	if color == ColorBlack {
		return d.Black
	}
	return d.White
}
