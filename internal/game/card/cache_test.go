package card

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/crsh/server/internal/game/rng"
)

// seqSource replays a fixed sequence of values, reduced modulo n.
type seqSource struct {
	vals []int
	i    int
}

func (s *seqSource) Intn(n int) int {
	if len(s.vals) == 0 {
		return 0
	}
	v := s.vals[s.i%len(s.vals)] % n
	s.i++
	return v
}

func testDeck(name string, blackIDs, whiteIDs []ID) Deck {
	d := Deck{Name: name}
	for _, id := range blackIDs {
		d.Black = append(d.Black, Card{ID: id, Content: fmt.Sprintf("black %d", id)})
	}
	for _, id := range whiteIDs {
		d.White = append(d.White, Card{ID: id, Content: fmt.Sprintf("white %d", id)})
	}
	return d
}

func TestDeckCache_AddDeckAndLookup(t *testing.T) {
	c := NewDeckCache(rng.NewCryptoSource())
	c.AddDeck(testDeck("base", []ID{1, 2}, []ID{10, 11, 12}))

	cd, ok := c.Card(1)
	require.True(t, ok)
	assert.Equal(t, ColorBlack, cd.Color)
	assert.Equal(t, "black 1", cd.Content)

	cd, ok = c.Card(11)
	require.True(t, ok)
	assert.Equal(t, ColorWhite, cd.Color)

	_, ok = c.Card(99)
	assert.False(t, ok)
}

func TestDeckCache_SharedDeckRefcount(t *testing.T) {
	c := NewDeckCache(rng.NewCryptoSource())
	deck := testDeck("base", []ID{1}, []ID{2})

	c.AddDeck(deck)
	c.AddDeck(deck) // second room, same deck name

	c.RemoveDeck("base")
	_, ok := c.Card(1)
	assert.True(t, ok, "deck still referenced by one room")

	c.RemoveDeck("base")
	_, ok = c.Card(1)
	assert.False(t, ok)
	_, ok = c.Card(2)
	assert.False(t, ok)
	assert.False(t, c.Cached("base"))
}

func TestDeckCache_IdCollisionPanics(t *testing.T) {
	c := NewDeckCache(rng.NewCryptoSource())
	c.AddDeck(testDeck("a", []ID{1}, nil))
	assert.Panics(t, func() {
		c.AddDeck(testDeck("b", nil, []ID{1}))
	})
}

func TestDeckCache_RemoveUncachedPanics(t *testing.T) {
	c := NewDeckCache(rng.NewCryptoSource())
	assert.Panics(t, func() { c.RemoveDeck("missing") })
}

func TestDeckCache_RandomWhite_SkipsEmptyDecks(t *testing.T) {
	c := NewDeckCache(rng.NewCryptoSource())
	c.AddDeck(testDeck("empty", []ID{1}, nil))
	c.AddDeck(testDeck("full", nil, []ID{20, 21}))

	for i := 0; i < 50; i++ {
		cd, ok := c.RandomWhite([]string{"empty", "full"})
		require.True(t, ok)
		assert.Contains(t, []ID{20, 21}, cd.ID)
	}
}

func TestDeckCache_RandomBlack_NoneAvailable(t *testing.T) {
	c := NewDeckCache(rng.NewCryptoSource())
	c.AddDeck(testDeck("whites", nil, []ID{1, 2}))

	_, ok := c.RandomBlack([]string{"whites"})
	assert.False(t, ok)
	_, ok = c.RandomBlack(nil)
	assert.False(t, ok)
	_, ok = c.RandomBlack([]string{"unknown"})
	assert.False(t, ok)
}

func TestDeckCache_InsertAndDeleteCard(t *testing.T) {
	c := NewDeckCache(rng.NewCryptoSource())
	c.AddDeck(testDeck("base", []ID{1}, []ID{2}))

	c.InsertCard("base", Card{ID: 3, Content: "new answer", Color: ColorWhite})
	cd, ok := c.Card(3)
	require.True(t, ok)
	assert.Equal(t, "new answer", cd.Content)

	c.DeleteCard("base", 3)
	_, ok = c.Card(3)
	assert.False(t, ok)

	// Edits against an uncached deck are no-ops.
	c.InsertCard("other", Card{ID: 4, Color: ColorWhite})
	_, ok = c.Card(4)
	assert.False(t, ok)
	c.DeleteCard("base", 99)
}

func TestWeightedIndex_RespectsWeights(t *testing.T) {
	// pick values 0..5 map onto the cumulative sums [2, 2, 5]:
	// picks 1-2 choose index 0, picks 3-5 choose index 2.
	src := &seqSource{vals: []int{0, 1, 2, 3, 4}}
	weights := []int{2, 0, 3}

	got := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		idx, ok := weightedIndex(src, weights)
		require.True(t, ok)
		got = append(got, idx)
	}
	assert.Equal(t, []int{0, 0, 2, 2, 2}, got)
}

func TestWeightedIndex_AllZero(t *testing.T) {
	_, ok := weightedIndex(rng.NewCryptoSource(), []int{0, 0})
	assert.False(t, ok)
	_, ok = weightedIndex(rng.NewCryptoSource(), nil)
	assert.False(t, ok)
}

// Property: a deck entry exists iff adds exceed removes, and once the
// counts balance none of its card ids remain in the flat map.
func TestPropertyRefcountBalance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewDeckCache(rng.NewCryptoSource())
		deck := testDeck("d", []ID{1, 2}, []ID{3, 4, 5})

		adds := rapid.IntRange(1, 10).Draw(t, "adds")
		removes := rapid.IntRange(0, adds).Draw(t, "removes")

		for i := 0; i < adds; i++ {
			c.AddDeck(deck)
		}
		for i := 0; i < removes; i++ {
			c.RemoveDeck("d")
		}

		if adds > removes {
			if !c.Cached("d") {
				t.Fatalf("deck purged with %d adds and %d removes", adds, removes)
			}
			return
		}
		if c.Cached("d") {
			t.Fatalf("deck resident after counts balanced")
		}
		for _, id := range []ID{1, 2, 3, 4, 5} {
			if _, ok := c.Card(id); ok {
				t.Fatalf("card %d survived deck purge", id)
			}
		}
	})
}

// Property: random draws only ever return cards belonging to one of
// the requested decks, of the requested color.
func TestPropertyRandomDrawMembership(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewDeckCache(rng.NewCryptoSource())
		c.AddDeck(testDeck("a", []ID{1, 2}, []ID{3}))
		c.AddDeck(testDeck("b", []ID{10}, []ID{11, 12}))
		c.AddDeck(testDeck("c", nil, []ID{20}))

		active := rapid.SampledFrom([][]string{
			{"a"}, {"b"}, {"c"}, {"a", "b"}, {"b", "c"}, {"a", "b", "c"},
		}).Draw(t, "active")

		member := make(map[ID]string)
		for id, deck := range map[ID]string{1: "a", 2: "a", 3: "a", 10: "b", 11: "b", 12: "b", 20: "c"} {
			member[id] = deck
		}
		inActive := func(id ID) bool {
			for _, name := range active {
				if member[id] == name {
					return true
				}
			}
			return false
		}

		if cd, ok := c.RandomBlack(active); ok {
			if cd.Color != ColorBlack || !inActive(cd.ID) {
				t.Fatalf("black draw returned %+v for decks %v", cd, active)
			}
		}
		if cd, ok := c.RandomWhite(active); ok {
			if cd.Color != ColorWhite || !inActive(cd.ID) {
				t.Fatalf("white draw returned %+v for decks %v", cd, active)
			}
		}
	})
}
