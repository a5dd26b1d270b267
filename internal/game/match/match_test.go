package match

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/crsh/server/internal/game/card"
	"github.com/crsh/server/internal/game/player"
	"github.com/crsh/server/internal/game/rng"
	"github.com/crsh/server/internal/game/session"
)

var (
	alice = player.Player{ID: 1, Name: "Alice"}
	bob   = player.Player{ID: 2, Name: "Bob"}
	carol = player.Player{ID: 3, Name: "Carol"}
)

func testCache(t rapid.TB) *card.DeckCache {
	t.Helper()
	deck := card.Deck{Name: "base"}
	for i := 1; i <= 5; i++ {
		deck.Black = append(deck.Black, card.Card{ID: card.ID(i), Content: fmt.Sprintf("prompt %d", i)})
	}
	for i := 100; i < 140; i++ {
		deck.White = append(deck.White, card.Card{ID: card.ID(i), Content: fmt.Sprintf("answer %d", i)})
	}
	cache := card.NewDeckCache(rng.NewCryptoSource())
	cache.AddDeck(deck)
	return cache
}

func newTestMatch(t rapid.TB, pointsToWin int) *Match {
	t.Helper()
	return New("Main", []string{"base"}, pointsToWin, 3, testCache(t), zap.NewNop())
}

// drain decodes and returns everything currently buffered on conn.
func drain(t *testing.T, conn *session.Conn) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case e := <-conn.Events():
			var m map[string]any
			require.NoError(t, json.Unmarshal(e, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func types(events []map[string]any) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e["type"].(string)
	}
	return out
}

func seatAll(t rapid.TB, m *Match) map[player.ID]*session.Conn {
	t.Helper()
	conns := make(map[player.ID]*session.Conn)
	for _, p := range []player.Player{alice, bob, carol} {
		m.Join(p)
		conns[p.ID] = session.NewConn(64)
		require.NoError(t, m.AttachConn(p.ID, conns[p.ID]))
	}
	return conns
}

func TestMatch_FirstPlayerBecomesCzar(t *testing.T) {
	m := newTestMatch(t, 5)

	st := m.Join(alice)
	czar, ok := m.Czar()
	require.True(t, ok)
	assert.Equal(t, alice.ID, czar)
	require.NotNil(t, st.Czar)
	assert.Equal(t, alice.ID, *st.Czar)
	assert.Empty(t, st.Players, "own snapshot excludes self")

	st = m.Join(bob)
	czar, _ = m.Czar()
	assert.Equal(t, alice.ID, czar, "czar unchanged by later joins")
	assert.Equal(t, []player.Player{alice}, st.Players)
}

func TestMatch_JoinIsIdempotent(t *testing.T) {
	m := newTestMatch(t, 5)
	m.Join(alice)
	m.Join(alice)
	assert.Equal(t, 1, m.PlayerCount())
}

func TestMatch_JoinBroadcastsToSeatedOnly(t *testing.T) {
	m := newTestMatch(t, 5)
	m.Join(alice)
	aliceConn := session.NewConn(8)
	require.NoError(t, m.AttachConn(alice.ID, aliceConn))

	m.Join(bob)

	events := drain(t, aliceConn)
	require.Len(t, events, 1)
	assert.Equal(t, "player_joined", events[0]["type"])
	joined := events[0]["player"].(map[string]any)
	assert.Equal(t, "Bob", joined["name"])
}

func TestMatch_StartRejectsNonCzar(t *testing.T) {
	m := newTestMatch(t, 5)
	seatAll(t, m)

	err := m.Start(carol.ID)
	assert.ErrorIs(t, err, ErrNotCzar)
	assert.False(t, m.Started())
}

func TestMatch_StartNeedsThreePlayers(t *testing.T) {
	m := newTestMatch(t, 5)
	m.Join(alice)
	m.Join(bob)

	assert.ErrorIs(t, m.Start(alice.ID), ErrNotEnoughPlayers)
}

func TestMatch_StartDealsHandsAndBlack(t *testing.T) {
	m := newTestMatch(t, 5)
	conns := seatAll(t, m)
	for _, conn := range conns {
		drain(t, conn) // discard join traffic
	}

	require.NoError(t, m.Start(alice.ID))
	assert.True(t, m.Started())
	assert.ErrorIs(t, m.Start(alice.ID), ErrAlreadyStarted)

	for id, conn := range conns {
		events := drain(t, conn)
		assert.Equal(t,
			[]string{"matchStarted", "addCardToHand", "addCardToHand", "addCardToHand", "newBlack"},
			types(events),
			"player %d event order", id)

		seat, ok := m.Seat(id)
		require.True(t, ok)
		require.Len(t, seat.Hand, 3)
		for i, cd := range seat.Hand {
			assert.Equal(t, card.ColorWhite, cd.Color)
			assert.Equal(t, float64(cd.ID), events[i+1]["card_id"])
		}
	}
}

func TestMatch_EveryoneSubmittedFiresOnLastSubmission(t *testing.T) {
	m := newTestMatch(t, 5)
	conns := seatAll(t, m)
	require.NoError(t, m.Start(alice.ID))
	for _, conn := range conns {
		drain(t, conn)
	}

	bobSeat, _ := m.Seat(bob.ID)
	carolSeat, _ := m.Seat(carol.ID)

	require.NoError(t, m.SubmitCard(bob.ID, bobSeat.Hand[0].ID))
	assert.False(t, m.HasEveryoneSubmitted())
	assert.Empty(t, drain(t, conns[alice.ID]), "no broadcast after first submission")

	require.NoError(t, m.SubmitCard(carol.ID, carolSeat.Hand[1].ID))
	assert.True(t, m.HasEveryoneSubmitted())

	events := drain(t, conns[alice.ID])
	require.Len(t, events, 1)
	assert.Equal(t, "everyone_submitted", events[0]["type"])
	assert.Equal(t,
		[]any{float64(bobSeat.Hand[0].ID), float64(carolSeat.Hand[1].ID)},
		events[0]["card_ids"],
		"submitted ids in seat order, czar excluded")
}

func TestMatch_SecondSubmissionIgnored(t *testing.T) {
	m := newTestMatch(t, 5)
	seatAll(t, m)
	require.NoError(t, m.Start(alice.ID))

	seat, _ := m.Seat(bob.ID)
	first, second := seat.Hand[0], seat.Hand[1]

	require.NoError(t, m.SubmitCard(bob.ID, first.ID))
	require.NoError(t, m.SubmitCard(bob.ID, second.ID))
	assert.Equal(t, first.ID, seat.Submitted.ID)
}

func TestMatch_SubmitGuards(t *testing.T) {
	m := newTestMatch(t, 5)
	seatAll(t, m)
	require.NoError(t, m.Start(alice.ID))

	assert.ErrorIs(t, m.SubmitCard(99, 100), ErrNotSeated)
	assert.ErrorIs(t, m.SubmitCard(bob.ID, 9999), ErrUnknownCard)
}

func TestMatch_RevealGuards(t *testing.T) {
	m := newTestMatch(t, 5)
	conns := seatAll(t, m)
	require.NoError(t, m.Start(alice.ID))

	bobSeat, _ := m.Seat(bob.ID)
	assert.ErrorIs(t, m.RevealCard(bob.ID, bobSeat.Hand[0].ID), ErrNotCzar)
	assert.ErrorIs(t, m.RevealCard(alice.ID, bobSeat.Hand[0].ID), ErrRoundNotReady)

	carolSeat, _ := m.Seat(carol.ID)
	require.NoError(t, m.SubmitCard(bob.ID, bobSeat.Hand[0].ID))
	require.NoError(t, m.SubmitCard(carol.ID, carolSeat.Hand[0].ID))
	for _, conn := range conns {
		drain(t, conn)
	}

	require.NoError(t, m.RevealCard(alice.ID, bobSeat.Submitted.ID))
	events := drain(t, conns[carol.ID])
	require.Len(t, events, 1)
	assert.Equal(t, "revealCard", events[0]["type"])
	assert.Equal(t, bobSeat.Submitted.Content, events[0]["card_content"])
}

func TestMatch_CzarChoiceScoresAndResetRotates(t *testing.T) {
	m := newTestMatch(t, 5)
	conns := seatAll(t, m)
	require.NoError(t, m.Start(alice.ID))

	bobSeat, _ := m.Seat(bob.ID)
	carolSeat, _ := m.Seat(carol.ID)
	require.NoError(t, m.SubmitCard(bob.ID, bobSeat.Hand[0].ID))
	require.NoError(t, m.SubmitCard(carol.ID, carolSeat.Hand[0].ID))
	for _, conn := range conns {
		drain(t, conn)
	}

	winning := carolSeat.Submitted.ID
	require.NoError(t, m.CzarChoice(alice.ID, winning))
	assert.Equal(t, 1, carolSeat.Points)

	events := drain(t, conns[bob.ID])
	require.Len(t, events, 2)
	assert.Equal(t, "czar_choice", events[0]["type"])
	assert.Equal(t, float64(winning), events[0]["card_id"])
	assert.Equal(t, "roundWon", events[1]["type"])
	assert.Equal(t, float64(carol.ID), events[1]["player_id"])

	m.ResetRound()

	// Non-czar players swap out their submission and draw a fresh card.
	for _, id := range []player.ID{bob.ID, carol.ID} {
		events := drain(t, conns[id])
		assert.Equal(t,
			[]string{"removeCard", "addCardToHand", "newRound", "newBlack", "newCzar"},
			types(events), "player %d", id)
		seat, _ := m.Seat(id)
		require.Len(t, seat.Hand, 3)
		assert.Nil(t, seat.Submitted)
	}

	// The czar only observes the round rollover.
	aliceEvents := drain(t, conns[alice.ID])
	assert.Equal(t, []string{"newRound", "newBlack", "newCzar"}, types(aliceEvents))
	assert.Equal(t, float64(bob.ID), aliceEvents[2]["czar"], "czar advances past Alice")

	czar, ok := m.Czar()
	require.True(t, ok)
	assert.Equal(t, bob.ID, czar)
}

func TestMatch_CzarChoiceGuards(t *testing.T) {
	m := newTestMatch(t, 5)
	seatAll(t, m)
	require.NoError(t, m.Start(alice.ID))

	assert.ErrorIs(t, m.CzarChoice(bob.ID, 100), ErrNotCzar)
	assert.ErrorIs(t, m.CzarChoice(alice.ID, 100), ErrRoundNotReady)

	bobSeat, _ := m.Seat(bob.ID)
	carolSeat, _ := m.Seat(carol.ID)
	require.NoError(t, m.SubmitCard(bob.ID, bobSeat.Hand[0].ID))
	require.NoError(t, m.SubmitCard(carol.ID, carolSeat.Hand[0].ID))

	// A card nobody submitted is not a candidate.
	assert.ErrorIs(t, m.CzarChoice(alice.ID, 9999), ErrUnknownCard)
}

func TestMatch_PlayerWonAtTarget(t *testing.T) {
	m := newTestMatch(t, 1)
	conns := seatAll(t, m)
	require.NoError(t, m.Start(alice.ID))

	bobSeat, _ := m.Seat(bob.ID)
	carolSeat, _ := m.Seat(carol.ID)
	require.NoError(t, m.SubmitCard(bob.ID, bobSeat.Hand[0].ID))
	require.NoError(t, m.SubmitCard(carol.ID, carolSeat.Hand[0].ID))
	for _, conn := range conns {
		drain(t, conn)
	}

	require.NoError(t, m.CzarChoice(alice.ID, bobSeat.Submitted.ID))
	got := types(drain(t, conns[carol.ID]))
	assert.Equal(t, []string{"czar_choice", "roundWon", "playerWon"}, got)
	assert.True(t, m.Started(), "play continues after a win")
}

func TestMatch_LeaveReassignsCzar(t *testing.T) {
	m := newTestMatch(t, 5)
	conns := seatAll(t, m)
	for _, conn := range conns {
		drain(t, conn)
	}

	// Bob leaves while Alice is czar: the seat after Bob takes over.
	seat, ok := m.Leave(bob.ID)
	require.True(t, ok)
	assert.Equal(t, bob.ID, seat.Player.ID)
	assert.Equal(t, 2, m.PlayerCount())

	czar, hasCzar := m.Czar()
	require.True(t, hasCzar)
	assert.Equal(t, carol.ID, czar)

	events := drain(t, conns[alice.ID])
	require.Len(t, events, 1)
	assert.Equal(t, "player_left", events[0]["type"])
	assert.Equal(t, float64(bob.ID), events[0]["player_id"])
}

func TestMatch_LeaveLastPlayerClearsCzar(t *testing.T) {
	m := newTestMatch(t, 5)
	m.Join(alice)

	_, ok := m.Leave(alice.ID)
	require.True(t, ok)
	_, hasCzar := m.Czar()
	assert.False(t, hasCzar)
	assert.Equal(t, 0, m.PlayerCount())

	_, ok = m.Leave(alice.ID)
	assert.False(t, ok)
}

func TestMatch_ResetRoundEmptyMatch(t *testing.T) {
	m := newTestMatch(t, 5)
	m.ResetRound() // tolerated: the room emptied before the timer fired
	_, hasCzar := m.Czar()
	assert.False(t, hasCzar)
}

func TestMatch_ResetRoundAfterCzarLeft(t *testing.T) {
	m := newTestMatch(t, 5)
	seatAll(t, m)
	require.NoError(t, m.Start(alice.ID))

	// Czars disappear mid-round; each departure hands the role to the
	// next seat, and the reset keeps rotating from there.
	m.Leave(alice.ID)
	czar, _ := m.Czar()
	require.Equal(t, bob.ID, czar)
	m.Leave(bob.ID)

	m.ResetRound()
	czar, ok := m.Czar()
	require.True(t, ok)
	assert.Equal(t, carol.ID, czar)
}

func TestMatch_AttachConnUnknownPlayer(t *testing.T) {
	m := newTestMatch(t, 5)
	assert.ErrorIs(t, m.AttachConn(alice.ID, session.NewConn(4)), ErrNotSeated)
}

// Invariant: after any operation sequence the czar is either absent or
// the id of a seated player.
func TestPropertyCzarAlwaysSeated(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := newTestMatch(t, 5)
		roster := []player.Player{
			{ID: 1, Name: "P1"}, {ID: 2, Name: "P2"}, {ID: 3, Name: "P3"},
			{ID: 4, Name: "P4"}, {ID: 5, Name: "P5"},
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			p := roster[rapid.IntRange(0, len(roster)-1).Draw(t, "player")]
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				m.Join(p)
			case 1:
				m.Leave(p.ID)
			case 2:
				_ = m.Start(p.ID)
			case 3:
				m.ResetRound()
			}

			czar, ok := m.Czar()
			if !ok {
				if m.PlayerCount() != 0 {
					t.Fatalf("czar absent with %d players seated", m.PlayerCount())
				}
				continue
			}
			if !m.IsSeated(czar) {
				t.Fatalf("czar %d is not seated", czar)
			}
		}
	})
}

// Invariant: HasEveryoneSubmitted is true iff every non-czar seat has
// a submission.
func TestPropertyEveryoneSubmittedDefinition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := newTestMatch(t, 5)
		seatAll(t, m)
		require.NoError(t, m.Start(alice.ID))

		submitBob := rapid.Bool().Draw(t, "bob")
		submitCarol := rapid.Bool().Draw(t, "carol")
		if submitBob {
			seat, _ := m.Seat(bob.ID)
			require.NoError(t, m.SubmitCard(bob.ID, seat.Hand[0].ID))
		}
		if submitCarol {
			seat, _ := m.Seat(carol.ID)
			require.NoError(t, m.SubmitCard(carol.ID, seat.Hand[0].ID))
		}

		if m.HasEveryoneSubmitted() != (submitBob && submitCarol) {
			t.Fatalf("HasEveryoneSubmitted = %v with bob=%v carol=%v",
				m.HasEveryoneSubmitted(), submitBob, submitCarol)
		}
	})
}
