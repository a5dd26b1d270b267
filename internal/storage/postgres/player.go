package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crsh/server/internal/game/player"
)

// ErrPlayerNotFound is returned when a player lookup yields no results.
var ErrPlayerNotFound = errors.New("player not found")

// ErrPlayerExists is returned when attempting to register a duplicate
// username or email.
var ErrPlayerExists = errors.New("player already exists")

// ErrInvalidCredentials is returned when authentication fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// PlayerRecord is a player row as stored in the database.
type PlayerRecord struct {
	ID           player.ID
	Username     string
	Email        string
	PasswordHash string
	Salt         string
	CreatedAt    time.Time
}

// Player converts the record to its in-game representation.
func (r PlayerRecord) Player() player.Player {
	return player.Player{ID: r.ID, Name: r.Username}
}

// PlayerRepository provides player account persistence operations.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a PlayerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// Register inserts a new player with an argon2id-hashed password and a
// per-player random salt.
//
// Precondition: username, email and password must be non-empty.
// Postcondition: Returns the created PlayerRecord with ID and CreatedAt
// set, or ErrPlayerExists if the username or email is taken.
func (r *PlayerRepository) Register(ctx context.Context, username, email, password string) (PlayerRecord, error) {
	salt := uuid.NewString()
	hash := HashPassword(password, salt)

	var rec PlayerRecord
	err := r.db.QueryRow(ctx,
		`INSERT INTO players (username, email, password_hash, salt)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, username, email, password_hash, salt, created_at`,
		username, email, hash, salt,
	).Scan(&rec.ID, &rec.Username, &rec.Email, &rec.PasswordHash, &rec.Salt, &rec.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return PlayerRecord{}, ErrPlayerExists
		}
		return PlayerRecord{}, fmt.Errorf("inserting player: %w", err)
	}

	return rec, nil
}

// Authenticate verifies credentials and returns the matching player.
// The identifier may be either the username or the email address.
//
// Postcondition: Returns the PlayerRecord if credentials are valid,
// ErrPlayerNotFound if the identifier doesn't match any player,
// or ErrInvalidCredentials if the password is wrong.
func (r *PlayerRepository) Authenticate(ctx context.Context, identifier, password string) (PlayerRecord, error) {
	rec, err := r.GetByIdentifier(ctx, identifier)
	if err != nil {
		return PlayerRecord{}, err
	}

	if !CheckPassword(password, rec.Salt, rec.PasswordHash) {
		return PlayerRecord{}, ErrInvalidCredentials
	}

	return rec, nil
}

// GetByIdentifier retrieves a player by username or email.
//
// Postcondition: Returns the PlayerRecord or ErrPlayerNotFound.
func (r *PlayerRepository) GetByIdentifier(ctx context.Context, identifier string) (PlayerRecord, error) {
	var rec PlayerRecord
	err := r.db.QueryRow(ctx,
		`SELECT id, username, email, password_hash, salt, created_at
		 FROM players WHERE username = $1 OR email = $1`,
		identifier,
	).Scan(&rec.ID, &rec.Username, &rec.Email, &rec.PasswordHash, &rec.Salt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PlayerRecord{}, ErrPlayerNotFound
		}
		return PlayerRecord{}, fmt.Errorf("querying player: %w", err)
	}
	return rec, nil
}

// GetByID retrieves a player by id.
//
// Postcondition: Returns the PlayerRecord or ErrPlayerNotFound.
func (r *PlayerRepository) GetByID(ctx context.Context, id player.ID) (PlayerRecord, error) {
	var rec PlayerRecord
	err := r.db.QueryRow(ctx,
		`SELECT id, username, email, password_hash, salt, created_at
		 FROM players WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Username, &rec.Email, &rec.PasswordHash, &rec.Salt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PlayerRecord{}, ErrPlayerNotFound
		}
		return PlayerRecord{}, fmt.Errorf("querying player: %w", err)
	}
	return rec, nil
}
