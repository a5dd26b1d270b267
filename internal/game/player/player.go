// Package player defines the player identity shared by the session,
// match, and storage layers.
package player

// ID is the database-assigned player identity.
type ID int64

// Player is a registered player as seen by other players.
type Player struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}
