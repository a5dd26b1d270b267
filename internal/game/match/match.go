// Package match implements the per-room round state machine: czar
// rotation, card submission, reveal, scoring, and hand replenishment.
package match

import (
	"errors"

	"go.uber.org/zap"

	"github.com/crsh/server/internal/game/card"
	"github.com/crsh/server/internal/game/event"
	"github.com/crsh/server/internal/game/player"
	"github.com/crsh/server/internal/game/session"
)

// Progress is the one-way lifecycle of a match. There is no finished
// state: a win broadcasts an event and play continues.
type Progress int

const (
	NotStarted Progress = iota
	InProgress
)

// MinPlayers is the smallest roster that can start a match.
const MinPlayers = 3

var (
	// ErrAlreadyStarted is returned when starting a match twice.
	ErrAlreadyStarted = errors.New("match already started")
	// ErrNotEnoughPlayers is returned when starting with fewer than MinPlayers.
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	// ErrNotCzar is returned when an operation reserved for the czar is
	// requested by someone else.
	ErrNotCzar = errors.New("requester is not the czar")
	// ErrRoundNotReady is returned when revealing or choosing before
	// every non-czar player has submitted.
	ErrRoundNotReady = errors.New("round not ready: submissions outstanding")
	// ErrNotSeated is returned when the player is not in the match.
	ErrNotSeated = errors.New("player is not in this match")
	// ErrUnknownCard is returned when a card id does not resolve to a
	// card relevant to the operation.
	ErrUnknownCard = errors.New("unknown card")
)

// Seat is one player's presence in a match: hand, score, pending
// submission, and the optional live connection.
type Seat struct {
	Player    player.Player
	Hand      []card.Card
	Points    int
	Submitted *card.Card
	Conn      *session.Conn
}

// Match is a named room running rounds over a shared deck cache.
//
// Match is NOT safe for concurrent use; it is owned and mutated only
// by the coordinator loop. Rooms persist even when empty.
//
// Invariant: the czar is either absent (no players) or the id of a
// currently seated player.
type Match struct {
	name        string
	seats       []*Seat
	progress    Progress
	activeDecks []string
	czar        player.ID
	hasCzar     bool
	pointsToWin int
	handSize    int
	cache       *card.DeckCache
	logger      *zap.Logger
}

// New creates an empty match drawing from the named decks.
//
// Precondition: cache and logger must be non-nil; pointsToWin and
// handSize must be positive.
func New(name string, decks []string, pointsToWin, handSize int, cache *card.DeckCache, logger *zap.Logger) *Match {
	return &Match{
		name:        name,
		activeDecks: decks,
		pointsToWin: pointsToWin,
		handSize:    handSize,
		cache:       cache,
		logger:      logger.With(zap.String("match", name)),
	}
}

// Name returns the room name.
func (m *Match) Name() string { return m.name }

// Started reports whether the match has left the lobby.
func (m *Match) Started() bool { return m.progress == InProgress }

// Decks returns the deck names this match draws from.
func (m *Match) Decks() []string { return m.activeDecks }

// Czar returns the current judge, if any player is seated.
func (m *Match) Czar() (player.ID, bool) { return m.czar, m.hasCzar }

// PlayerCount returns the number of seated players.
func (m *Match) PlayerCount() int { return len(m.seats) }

// Seat returns the seat for the given player id.
func (m *Match) Seat(id player.ID) (*Seat, bool) {
	for _, s := range m.seats {
		if s.Player.ID == id {
			return s, true
		}
	}
	return nil, false
}

// IsSeated reports whether the player is in the match.
func (m *Match) IsSeated(id player.ID) bool {
	_, ok := m.Seat(id)
	return ok
}

// Join seats p in the match. Joining twice is a no-op returning the
// current state. Every already-seated player receives player_joined;
// the new player does not see their own join. The first player to sit
// becomes czar.
func (m *Match) Join(p player.Player) GameState {
	if m.IsSeated(p.ID) {
		return m.State(p.ID)
	}

	m.broadcast(event.PlayerJoined(p))

	m.seats = append(m.seats, &Seat{Player: p})
	if !m.hasCzar {
		m.czar = p.ID
		m.hasCzar = true
	}

	m.logger.Info("player joined",
		zap.Int64("player_id", int64(p.ID)),
		zap.Int("players", len(m.seats)),
	)
	return m.State(p.ID)
}

// Leave removes the player and reassigns the czar to the next seat in
// join order, wrapping around; with nobody left the czar is cleared.
// Remaining players receive player_left.
//
// Postcondition: Returns the removed seat, or (nil, false) if the
// player was not in the match.
func (m *Match) Leave(id player.ID) (*Seat, bool) {
	idx := -1
	for i, s := range m.seats {
		if s.Player.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	// The next seat is chosen before removal so the wraparound runs
	// over the full roster.
	if len(m.seats) > 1 {
		next := (idx + 1) % len(m.seats)
		m.czar = m.seats[next].Player.ID
		m.hasCzar = true
	}

	seat := m.seats[idx]
	m.seats = append(m.seats[:idx], m.seats[idx+1:]...)
	if len(m.seats) == 0 {
		m.hasCzar = false
		m.czar = 0
	}

	m.broadcast(event.PlayerLeft(id))
	m.logger.Info("player left",
		zap.Int64("player_id", int64(id)),
		zap.Int("players", len(m.seats)),
	)
	return seat, true
}

// Start moves the match into play: every player is dealt a hand of
// white cards and the first black card is revealed.
//
// Precondition: the requester must be the current czar, at least
// MinPlayers must be seated, and the match must not have started.
func (m *Match) Start(requester player.ID) error {
	if m.progress != NotStarted {
		return ErrAlreadyStarted
	}
	if len(m.seats) < MinPlayers {
		return ErrNotEnoughPlayers
	}
	if !m.hasCzar || m.czar != requester {
		return ErrNotCzar
	}

	m.progress = InProgress
	m.broadcast(event.MatchStarted())

	for _, seat := range m.seats {
		for i := 0; i < m.handSize; i++ {
			m.dealWhite(seat)
		}
	}
	m.dealBlack()

	m.logger.Info("match started", zap.Int("players", len(m.seats)))
	return nil
}

// SubmitCard records the player's answer for the round. A second
// submission is ignored. Once every non-czar player has submitted,
// everyone receives everyone_submitted with the card ids in seat
// order.
func (m *Match) SubmitCard(id player.ID, cardID card.ID) error {
	seat, ok := m.Seat(id)
	if !ok {
		return ErrNotSeated
	}
	cd, ok := m.cache.Card(cardID)
	if !ok {
		return ErrUnknownCard
	}

	if seat.Submitted == nil {
		seat.Submitted = &cd
	}

	if m.HasEveryoneSubmitted() {
		m.broadcast(event.EveryoneSubmitted(m.submittedIDs()))
	}
	return nil
}

// RevealCard shows one submitted card to the whole match. Only the
// czar may reveal, and only once everyone has submitted.
func (m *Match) RevealCard(requester player.ID, cardID card.ID) error {
	if !m.hasCzar || m.czar != requester {
		return ErrNotCzar
	}
	if !m.HasEveryoneSubmitted() {
		return ErrRoundNotReady
	}
	cd, ok := m.cache.Card(cardID)
	if !ok {
		return ErrUnknownCard
	}

	m.broadcast(event.RevealCard(cd))
	return nil
}

// CzarChoice scores the round: the player whose submission matches
// cardID gains a point and roundWon is broadcast; reaching the points
// target additionally broadcasts playerWon. Play continues regardless;
// the caller schedules the delayed round reset.
func (m *Match) CzarChoice(requester player.ID, cardID card.ID) error {
	if !m.hasCzar || m.czar != requester {
		return ErrNotCzar
	}
	if !m.HasEveryoneSubmitted() {
		return ErrRoundNotReady
	}

	var winner *Seat
	for _, seat := range m.seats {
		if seat.Submitted != nil && seat.Submitted.ID == cardID {
			winner = seat
			break
		}
	}
	if winner == nil {
		return ErrUnknownCard
	}

	m.broadcast(event.CzarChoice(cardID))

	winner.Points++
	m.broadcast(event.RoundWon(winner.Player.ID))
	if winner.Points >= m.pointsToWin {
		m.broadcast(event.PlayerWon(winner.Player.ID))
		m.logger.Info("player won",
			zap.Int64("player_id", int64(winner.Player.ID)),
			zap.Int("points", winner.Points),
		)
	}
	return nil
}

// ResetRound replenishes hands and rotates the czar. It runs when the
// round-reset timer fires, re-entering the coordinator loop, and must
// tolerate any interim roster change: missing players are skipped and
// an empty match is a no-op.
func (m *Match) ResetRound() {
	if len(m.seats) == 0 {
		return
	}

	for _, seat := range m.seats {
		if seat.Submitted != nil && (!m.hasCzar || seat.Player.ID != m.czar) {
			m.discard(seat, seat.Submitted.ID)
			m.dealWhite(seat)
		}
		// Cleared for every seat, czar included.
		seat.Submitted = nil
	}

	m.broadcast(event.NewRound())
	m.dealBlack()
	m.advanceCzar()
}

// HasEveryoneSubmitted reports whether every seated player other than
// the czar has a pending submission.
func (m *Match) HasEveryoneSubmitted() bool {
	for _, seat := range m.seats {
		if m.hasCzar && seat.Player.ID == m.czar {
			continue
		}
		if seat.Submitted == nil {
			return false
		}
	}
	return true
}

// AttachConn binds a live connection to the player's seat, replacing
// any previous one.
func (m *Match) AttachConn(id player.ID, conn *session.Conn) error {
	seat, ok := m.Seat(id)
	if !ok {
		return ErrNotSeated
	}
	seat.Conn = conn
	return nil
}

// advanceCzar moves the czar to the seat after the current one in join
// order, falling back to the first seat when the previous czar is no
// longer present.
func (m *Match) advanceCzar() {
	if len(m.seats) == 0 {
		m.hasCzar = false
		m.czar = 0
		return
	}

	pos := -1
	if m.hasCzar {
		for i, seat := range m.seats {
			if seat.Player.ID == m.czar {
				pos = i
				break
			}
		}
	}

	if pos < 0 {
		m.czar = m.seats[0].Player.ID
	} else {
		m.czar = m.seats[(pos+1)%len(m.seats)].Player.ID
	}
	m.hasCzar = true
	m.broadcast(event.NewCzar(m.czar))
}

// submittedIDs returns the submitted card ids in seat order, czar
// excluded.
func (m *Match) submittedIDs() []card.ID {
	ids := make([]card.ID, 0, len(m.seats))
	for _, seat := range m.seats {
		if m.hasCzar && seat.Player.ID == m.czar {
			continue
		}
		if seat.Submitted != nil {
			ids = append(ids, seat.Submitted.ID)
		}
	}
	return ids
}

// dealWhite draws a white card into the seat's hand and notifies its
// owner. Failed draws (exhausted decks) are logged and skipped.
func (m *Match) dealWhite(seat *Seat) {
	cd, ok := m.cache.RandomWhite(m.activeDecks)
	if !ok {
		m.logger.Warn("no white card available", zap.Strings("decks", m.activeDecks))
		return
	}
	seat.Hand = append(seat.Hand, cd)
	m.push(seat, event.AddCardToHand(cd))
}

// dealBlack draws the round's prompt card and broadcasts it.
func (m *Match) dealBlack() {
	cd, ok := m.cache.RandomBlack(m.activeDecks)
	if !ok {
		m.logger.Warn("no black card available", zap.Strings("decks", m.activeDecks))
		return
	}
	m.broadcast(event.NewBlack(cd))
}

// discard removes the card with the given id from the seat's hand and
// notifies its owner.
func (m *Match) discard(seat *Seat, id card.ID) {
	for i, cd := range seat.Hand {
		if cd.ID == id {
			seat.Hand = append(seat.Hand[:i], seat.Hand[i+1:]...)
			break
		}
	}
	m.push(seat, event.RemoveCard(id))
}

// broadcast pushes e to every seated player with a live connection.
func (m *Match) broadcast(e event.Event) {
	for _, seat := range m.seats {
		m.push(seat, e)
	}
}

// push delivers e to one seat. Send failures mean a slow or dead
// client and are dropped.
func (m *Match) push(seat *Seat, e event.Event) {
	if seat.Conn == nil {
		return
	}
	if err := seat.Conn.Push(e); err != nil {
		m.logger.Debug("dropping event",
			zap.Int64("player_id", int64(seat.Player.ID)),
			zap.Error(err),
		)
	}
}
