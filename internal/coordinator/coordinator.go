// Package coordinator serializes every mutation of game state through a
// single command loop. HTTP and WebSocket handlers call the exported
// methods from their own goroutines; each method enqueues a command and
// waits for the loop to run it, so the registries, matches, and the
// deck cache never see concurrent access. Database calls run outside
// the loop on a bounded set of slots and re-enter it only to apply
// their results.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crsh/server/internal/config"
	"github.com/crsh/server/internal/game/card"
	"github.com/crsh/server/internal/game/match"
	"github.com/crsh/server/internal/game/player"
	"github.com/crsh/server/internal/game/session"
	"github.com/crsh/server/internal/storage/postgres"
)

var (
	// ErrStopped is returned when a command arrives after shutdown.
	ErrStopped = errors.New("coordinator stopped")
	// ErrUnknownToken is returned when a session token does not resolve
	// to a logged-in player.
	ErrUnknownToken = errors.New("unknown session token")
	// ErrUnknownMatch is returned when a room name does not exist.
	ErrUnknownMatch = errors.New("unknown match")
)

// Store is the persistence surface the coordinator depends on.
type Store interface {
	Register(ctx context.Context, username, email, password string) (postgres.PlayerRecord, error)
	Authenticate(ctx context.Context, identifier, password string) (postgres.PlayerRecord, error)
	GetDeck(ctx context.Context, name string) (card.Deck, error)
	AddCard(ctx context.Context, deckName string, color card.Color, content string) (card.Card, error)
	DeleteCard(ctx context.Context, deckName string, id card.ID) (card.Card, error)
}

// RepoStore adapts the postgres repositories to the Store interface.
type RepoStore struct {
	Players *postgres.PlayerRepository
	Decks   *postgres.DeckRepository
}

func (s RepoStore) Register(ctx context.Context, username, email, password string) (postgres.PlayerRecord, error) {
	return s.Players.Register(ctx, username, email, password)
}

func (s RepoStore) Authenticate(ctx context.Context, identifier, password string) (postgres.PlayerRecord, error) {
	return s.Players.Authenticate(ctx, identifier, password)
}

func (s RepoStore) GetDeck(ctx context.Context, name string) (card.Deck, error) {
	return s.Decks.GetDeck(ctx, name)
}

func (s RepoStore) AddCard(ctx context.Context, deckName string, color card.Color, content string) (card.Card, error) {
	return s.Decks.AddCard(ctx, deckName, color, content)
}

func (s RepoStore) DeleteCard(ctx context.Context, deckName string, id card.ID) (card.Card, error) {
	return s.Decks.DeleteCard(ctx, deckName, id)
}

// RoomInfo is one row of the room listing.
type RoomInfo struct {
	Name    string `json:"name"`
	Players int    `json:"players"`
	Started bool   `json:"started"`
}

// Coordinator owns the session registry, the match registry, and the
// deck cache, and is the only goroutine that touches them.
type Coordinator struct {
	cfg   config.GameConfig
	rooms []config.RoomConfig
	store Store

	// Loop-owned state. Never touched outside the command loop once
	// Start has run.
	cache    *card.DeckCache
	sessions *session.Registry
	matches  *match.Registry
	players  map[player.ID]player.Player

	cmds     chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	dbSlots  chan struct{}

	logger *zap.Logger
}

// New creates a Coordinator. Rooms are created and their decks loaded
// when Start runs.
//
// Precondition: store, cache, and logger must be non-nil; cfg must have
// passed config validation.
func New(cfg config.GameConfig, rooms []config.RoomConfig, store Store, cache *card.DeckCache, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		rooms:    rooms,
		store:    store,
		cache:    cache,
		sessions: session.NewRegistry(),
		matches:  match.NewRegistry(),
		players:  make(map[player.ID]player.Player),
		cmds:     make(chan func(), 256),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		dbSlots:  make(chan struct{}, cfg.DBWorkers),
		logger:   logger.Named("coordinator"),
	}
}

// Start loads the configured rooms and runs the command loop until Stop
// is called. It implements server.Service and blocks for the lifetime
// of the coordinator.
func (c *Coordinator) Start() error {
	defer close(c.done)

	if err := c.loadRooms(); err != nil {
		return err
	}

	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.quit:
			return nil
		}
	}
}

// Stop terminates the command loop. Commands enqueued after Stop fail
// with ErrStopped.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
}

// loadRooms fetches each configured room's decks from storage, makes
// them resident in the cache, and registers the match. Runs before the
// loop starts, so it may touch loop state directly.
func (c *Coordinator) loadRooms() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, room := range c.rooms {
		for _, deckName := range room.Decks {
			if c.cache.Cached(deckName) {
				c.cache.AddDeck(card.Deck{Name: deckName})
				continue
			}
			deck, err := c.store.GetDeck(ctx, deckName)
			if err != nil {
				return fmt.Errorf("loading deck %q for room %q: %w", deckName, room.Name, err)
			}
			c.cache.AddDeck(deck)
		}
		m := match.New(room.Name, room.Decks, c.cfg.PointsToWin, c.cfg.HandSize, c.cache, c.logger)
		c.matches.Add(m)
		c.logger.Info("room created",
			zap.String("match", room.Name),
			zap.Strings("decks", room.Decks),
		)
	}
	return nil
}

// do runs fn on the command loop and waits for it to complete. The
// context only bounds the wait to enqueue; once accepted, fn will run.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	wrapped := func() {
		defer close(ran)
		fn()
	}

	select {
	case c.cmds <- wrapped:
	case <-c.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ran:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// withDB runs fn while holding one of the bounded database slots.
func (c *Coordinator) withDB(ctx context.Context, fn func() error) error {
	select {
	case c.dbSlots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrStopped
	}
	defer func() { <-c.dbSlots }()
	return fn()
}

// RegisterAccount creates a new player account.
func (c *Coordinator) RegisterAccount(ctx context.Context, username, email, password string) (player.Player, error) {
	var rec postgres.PlayerRecord
	err := c.withDB(ctx, func() error {
		var err error
		rec, err = c.store.Register(ctx, username, email, password)
		return err
	})
	if err != nil {
		return player.Player{}, err
	}
	c.logger.Info("account registered", zap.Int64("player_id", int64(rec.ID)))
	return rec.Player(), nil
}

// Login authenticates by username or email and mints a session token.
// Any previous token for the same player is invalidated.
func (c *Coordinator) Login(ctx context.Context, identifier, password string) (session.Token, player.Player, error) {
	var rec postgres.PlayerRecord
	err := c.withDB(ctx, func() error {
		var err error
		rec, err = c.store.Authenticate(ctx, identifier, password)
		return err
	})
	if err != nil {
		return session.Token{}, player.Player{}, err
	}

	p := rec.Player()
	var token session.Token
	err = c.do(ctx, func() {
		token = c.sessions.Issue(p.ID)
		c.players[p.ID] = p
	})
	if err != nil {
		return session.Token{}, player.Player{}, err
	}

	c.logger.Info("player logged in", zap.Int64("player_id", int64(p.ID)))
	return token, p, nil
}

// ListRooms returns a snapshot of every room.
func (c *Coordinator) ListRooms(ctx context.Context) ([]RoomInfo, error) {
	var infos []RoomInfo
	err := c.do(ctx, func() {
		for _, name := range c.matches.Names() {
			m, ok := c.matches.Get(name)
			if !ok {
				continue
			}
			infos = append(infos, RoomInfo{
				Name:    m.Name(),
				Players: m.PlayerCount(),
				Started: m.Started(),
			})
		}
	})
	return infos, err
}

// JoinMatch seats the token's player in the named room, leaving any
// room they were in before. A player is in at most one room at a time.
func (c *Coordinator) JoinMatch(ctx context.Context, token session.Token, matchName string) (match.GameState, error) {
	var (
		state  match.GameState
		cmdErr error
	)
	err := c.do(ctx, func() {
		id, ok := c.sessions.Resolve(token)
		if !ok {
			cmdErr = ErrUnknownToken
			return
		}
		m, ok := c.matches.Get(matchName)
		if !ok {
			cmdErr = ErrUnknownMatch
			return
		}
		if prev, ok := c.matches.FindSeat(id); ok && prev != m {
			c.leaveLocked(prev, id)
		}
		state = m.Join(c.players[id])
	})
	if err != nil {
		return match.GameState{}, err
	}
	return state, cmdErr
}

// SocketConnect binds a live event connection to the player's seat in
// the named room, seating them first if needed, and returns the state
// snapshot the client renders on connect.
func (c *Coordinator) SocketConnect(ctx context.Context, token session.Token, matchName string, conn *session.Conn) (match.GameState, error) {
	var (
		state  match.GameState
		cmdErr error
	)
	err := c.do(ctx, func() {
		id, ok := c.sessions.Resolve(token)
		if !ok {
			cmdErr = ErrUnknownToken
			return
		}
		m, ok := c.matches.Get(matchName)
		if !ok {
			cmdErr = ErrUnknownMatch
			return
		}
		if prev, ok := c.matches.FindSeat(id); ok && prev != m {
			c.leaveLocked(prev, id)
		}
		m.Join(c.players[id])
		if err := m.AttachConn(id, conn); err != nil {
			cmdErr = err
			return
		}
		state = m.State(id)
	})
	if err != nil {
		return match.GameState{}, err
	}
	return state, cmdErr
}

// LeaveMatch removes the player from whatever room they are seated in.
// A no-op for players who are not seated anywhere.
func (c *Coordinator) LeaveMatch(ctx context.Context, token session.Token) error {
	var cmdErr error
	err := c.do(ctx, func() {
		id, ok := c.sessions.Resolve(token)
		if !ok {
			cmdErr = ErrUnknownToken
			return
		}
		if m, ok := c.matches.FindSeat(id); ok {
			c.leaveLocked(m, id)
		}
	})
	if err != nil {
		return err
	}
	return cmdErr
}

// Disconnect handles a dropped connection: the player leaves their
// room. The session token stays valid so they can reconnect.
func (c *Coordinator) Disconnect(ctx context.Context, token session.Token) error {
	return c.LeaveMatch(ctx, token)
}

// leaveLocked removes id from m and closes their event connection.
// Must run on the command loop.
func (c *Coordinator) leaveLocked(m *match.Match, id player.ID) {
	seat, ok := m.Leave(id)
	if !ok {
		return
	}
	if seat.Conn != nil {
		seat.Conn.Close()
	}
}

// StartMatch begins play in the named room on behalf of the token's
// player. Only the current czar may start.
func (c *Coordinator) StartMatch(ctx context.Context, token session.Token, matchName string) error {
	return c.matchCommand(ctx, token, matchName, func(m *match.Match, id player.ID) error {
		return m.Start(id)
	})
}

// SubmitCard records the player's answer for the current round.
func (c *Coordinator) SubmitCard(ctx context.Context, token session.Token, matchName string, cardID card.ID) error {
	return c.matchCommand(ctx, token, matchName, func(m *match.Match, id player.ID) error {
		return m.SubmitCard(id, cardID)
	})
}

// RevealCard shows one submitted card to the room on the czar's behalf.
func (c *Coordinator) RevealCard(ctx context.Context, token session.Token, matchName string, cardID card.ID) error {
	return c.matchCommand(ctx, token, matchName, func(m *match.Match, id player.ID) error {
		return m.RevealCard(id, cardID)
	})
}

// CzarChoice scores the round and schedules the delayed round reset.
func (c *Coordinator) CzarChoice(ctx context.Context, token session.Token, matchName string, cardID card.ID) error {
	return c.matchCommand(ctx, token, matchName, func(m *match.Match, id player.ID) error {
		if err := m.CzarChoice(id, cardID); err != nil {
			return err
		}
		c.scheduleReset(matchName)
		return nil
	})
}

// matchCommand resolves the token and room, then runs op on the loop.
func (c *Coordinator) matchCommand(ctx context.Context, token session.Token, matchName string, op func(*match.Match, player.ID) error) error {
	var cmdErr error
	err := c.do(ctx, func() {
		id, ok := c.sessions.Resolve(token)
		if !ok {
			cmdErr = ErrUnknownToken
			return
		}
		m, ok := c.matches.Get(matchName)
		if !ok {
			cmdErr = ErrUnknownMatch
			return
		}
		cmdErr = op(m, id)
	})
	if err != nil {
		return err
	}
	return cmdErr
}

// scheduleReset arranges for the room's next round to begin after the
// configured delay. The timer re-enters the loop and re-resolves the
// room, so roster changes in the meantime are safe.
func (c *Coordinator) scheduleReset(matchName string) {
	time.AfterFunc(c.cfg.RoundResetDelay, func() {
		err := c.do(context.Background(), func() {
			if m, ok := c.matches.Get(matchName); ok {
				m.ResetRound()
			}
		})
		if err != nil {
			c.logger.Debug("round reset dropped", zap.String("match", matchName), zap.Error(err))
		}
	})
}

// EventBuffer returns the configured per-connection event queue length.
func (c *Coordinator) EventBuffer() int {
	return c.cfg.EventBuffer
}

// GetCards returns every card in the named deck from storage.
func (c *Coordinator) GetCards(ctx context.Context, deckName string) (card.Deck, error) {
	var deck card.Deck
	err := c.withDB(ctx, func() error {
		var err error
		deck, err = c.store.GetDeck(ctx, deckName)
		return err
	})
	return deck, err
}

// AddCard stores a new card in the named deck and, when the deck is
// resident, makes it available to running matches immediately.
func (c *Coordinator) AddCard(ctx context.Context, deckName string, color card.Color, content string) (card.Card, error) {
	var cd card.Card
	err := c.withDB(ctx, func() error {
		var err error
		cd, err = c.store.AddCard(ctx, deckName, color, content)
		return err
	})
	if err != nil {
		return card.Card{}, err
	}

	err = c.do(ctx, func() {
		c.cache.InsertCard(deckName, cd)
	})
	if err != nil {
		return card.Card{}, err
	}
	return cd, nil
}

// DelCard deletes a card from the named deck in storage and from the
// live cache. Hands already holding the card keep it for the round.
func (c *Coordinator) DelCard(ctx context.Context, deckName string, id card.ID) (card.Card, error) {
	var cd card.Card
	err := c.withDB(ctx, func() error {
		var err error
		cd, err = c.store.DeleteCard(ctx, deckName, id)
		return err
	})
	if err != nil {
		return card.Card{}, err
	}

	err = c.do(ctx, func() {
		c.cache.DeleteCard(deckName, id)
	})
	if err != nil {
		return card.Card{}, err
	}
	return cd, nil
}
