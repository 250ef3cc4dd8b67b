/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package santa

import "errors"

var (
	// ErrUnknownParticipant is returned when a name is not on the roster.
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrNoCandidate is returned when a giver has nobody left to draw.
	// Retrying will not help until the game is reset.
	ErrNoCandidate = errors.New("no candidate available")

	// ErrPersistence is returned when the backing store could not be read or written.
	// The draw did not commit and may be retried.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidRoster is returned by New for rosters that cannot host a game.
	ErrInvalidRoster = errors.New("invalid roster")

	// ErrConflict is returned by a Store when the stored revision moved underneath the writer.
	ErrConflict = errors.New("revision conflict")

	// ErrNotFound is returned by a Store that holds no game yet.
	ErrNotFound = errors.New("game not found")

	// ErrCorruptState is returned when a saved game cannot be decoded or breaks
	// the pool/assignment invariants.
	ErrCorruptState = errors.New("corrupt game state")
)
