/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package santa draws Secret Santa recipients.
//
// A Game owns the roster, the pool of names nobody has drawn yet, and the
// giver -> recipient table. Draws are greedy: each giver picks uniformly from
// whatever is left in the pool except their own name, with no backtracking.
// A late giver can therefore be left holding only their own name, in which
// case Draw returns ErrNoCandidate until the game is reset.
package santa

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout = 5 * time.Second
	defaultRetries = 3
)

// Status is the aggregate view everyone may see.
type Status struct {
	Total     int `json:"total"`
	Claimed   int `json:"claimed"`
	Remaining int `json:"remaining"`
}

// Pair is one row of the assignment table.
type Pair struct {
	Giver     string `json:"giver"`
	Recipient string `json:"recipient"`
}

// Option configures a Game.
type Option func(*Game)

// WithStore sets the backing store. The default is a fresh MemoryStore.
func WithStore(store Store) Option {
	return func(g *Game) {
		g.store = store
	}
}

// WithSource sets the random source used for draws.
func WithSource(src Source) Option {
	return func(g *Game) {
		g.rng = src
	}
}

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(g *Game) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetries sets how many times a write is redone after a revision conflict.
func WithRetries(n int) Option {
	return func(g *Game) {
		if n >= 0 {
			g.retries = n
		}
	}
}

// WithLogf receives notices that do not fail an operation, such as a load
// falling back to a fresh game.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(g *Game) {
		g.logf = logf
	}
}

type Game struct {
	mu sync.Mutex

	roster  []string
	members map[string]bool

	pool     []string
	assigned map[string]string
	revision uint64

	store   Store
	rng     Source
	timeout time.Duration
	retries int
	logf    func(format string, args ...any)
}

// New creates a game for roster and loads any saved state for it from the store.
// A store that cannot be read, holds nothing, or holds a game for a different
// roster yields a fresh game instead of an error.
func New(ctx context.Context, roster []string, opts ...Option) (*Game, error) {
	if err := checkRoster(roster); err != nil {
		return nil, err
	}

	g := &Game{
		roster:  slices.Clone(roster),
		members: make(map[string]bool, len(roster)),
		timeout: defaultTimeout,
		retries: defaultRetries,
		logf:    func(string, ...any) {},
	}
	for _, name := range roster {
		g.members[name] = true
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.store == nil {
		g.store = NewMemoryStore()
	}
	if g.rng == nil {
		g.rng = newSource()
	}

	g.apply(freshSnapshot(g.roster), 0)

	if err := g.load(ctx); err != nil {
		g.logf("loading saved game failed, starting fresh: %v", err)
	}

	return g, nil
}

func checkRoster(roster []string) error {
	if len(roster) < 2 {
		return fmt.Errorf("%w: need at least two participants, got %d", ErrInvalidRoster, len(roster))
	}

	seen := make(map[string]bool, len(roster))
	for _, name := range roster {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: blank name", ErrInvalidRoster)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidRoster, name)
		}
		seen[name] = true
	}

	return nil
}

// Draw returns the recipient for giver, drawing one if giver has none yet.
//
// A giver who already drew gets the same recipient back and nothing changes.
// Otherwise a name other than the giver's own is taken from the pool at random
// and saved before Draw returns. If the save fails the game is left as it was
// and the error wraps ErrPersistence.
func (g *Game) Draw(ctx context.Context, giver string) (string, error) {
	recipient, _, err := g.Claim(ctx, giver)

	return recipient, err
}

// Claim is Draw that also reports whether this call made the draw, as opposed
// to returning one made earlier.
//
// The saved game is read first, so a draw or reset made by another process
// sharing the store is seen before the existing assignment is trusted.
func (g *Game) Claim(ctx context.Context, giver string) (string, bool, error) {
	if !g.members[giver] {
		return "", false, fmt.Errorf("%w: %q", ErrUnknownParticipant, giver)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(ctx); err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	for attempt := 0; ; attempt++ {
		if recipient, ok := g.assigned[giver]; ok {
			return recipient, false, nil
		}

		candidates := make([]int, 0, len(g.pool))
		for i, name := range g.pool {
			if name != giver {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			return "", false, fmt.Errorf("%w: for %q", ErrNoCandidate, giver)
		}

		idx := candidates[g.rng.IntN(len(candidates))]
		recipient := g.pool[idx]

		next := g.snapshot()
		next.Pool = slices.Delete(next.Pool, idx, idx+1)
		next.Assigned[giver] = recipient

		err := g.commit(ctx, next)
		if err == nil {
			return recipient, true, nil
		}

		if err = g.recover(ctx, err, attempt); err != nil {
			return "", false, err
		}
	}
}

// Reset forgets every assignment and puts the whole roster back in the pool.
func (g *Game) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; ; attempt++ {
		err := g.commit(ctx, freshSnapshot(g.roster))
		if err == nil {
			return nil
		}

		if err = g.recover(ctx, err, attempt); err != nil {
			return err
		}
	}
}

// Refresh reloads the game from the store, picking up writes made by other processes.
func (g *Game) Refresh(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}

func (g *Game) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Status{
		Total:     len(g.roster),
		Claimed:   len(g.assigned),
		Remaining: len(g.pool),
	}
}

// Lookup returns the recipient giver already drew, if any.
func (g *Game) Lookup(giver string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	recipient, ok := g.assigned[giver]

	return recipient, ok
}

// Assignments returns the table of givers and recipients in roster order.
func (g *Game) Assignments() []Pair {
	g.mu.Lock()
	defer g.mu.Unlock()

	pairs := make([]Pair, 0, len(g.assigned))
	for _, giver := range g.roster {
		if recipient, ok := g.assigned[giver]; ok {
			pairs = append(pairs, Pair{Giver: giver, Recipient: recipient})
		}
	}

	return pairs
}

// Pool returns the names nobody has drawn yet.
func (g *Game) Pool() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.pool)
}

func (g *Game) Roster() []string {
	return slices.Clone(g.roster)
}

func (g *Game) IsMember(name string) bool {
	return g.members[name]
}

// snapshot copies the current state. Caller holds g.mu.
func (g *Game) snapshot() Snapshot {
	return Snapshot{
		Roster:   g.roster,
		Pool:     g.pool,
		Assigned: g.assigned,
	}.clone()
}

func (g *Game) apply(snap Snapshot, revision uint64) {
	g.pool = snap.Pool
	g.assigned = snap.Assigned
	g.revision = revision
}

// commit saves next and only then makes it the current state. Caller holds g.mu.
func (g *Game) commit(ctx context.Context, next Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	revision, err := g.store.Save(ctx, next, g.revision)
	if err != nil {
		return err
	}

	g.apply(next, revision)

	return nil
}

// recover decides whether a failed commit is worth redoing. On a revision
// conflict it reloads the latest saved state and returns nil so the caller
// can try again. Caller holds g.mu.
func (g *Game) recover(ctx context.Context, err error, attempt int) error {
	if !errors.Is(err, ErrConflict) || attempt >= g.retries {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := g.load(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}

// load replaces the in-memory state with the saved one. A saved game that
// cannot be decoded or does not match this roster is dropped, keeping its
// revision so the next write replaces it. Caller holds g.mu, or is New.
func (g *Game) load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	snap, revision, err := g.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		g.apply(freshSnapshot(g.roster), 0)
		return nil
	case errors.Is(err, ErrCorruptState):
		g.logf("saved game unreadable, starting fresh: %v", err)
		g.apply(freshSnapshot(g.roster), revision)
		return nil
	case err != nil:
		return err
	}

	if !slices.Equal(snap.Roster, g.roster) {
		g.logf("saved game has a different roster, starting fresh")
		g.apply(freshSnapshot(g.roster), revision)
		return nil
	}

	if err := snap.Validate(); err != nil {
		g.logf("saved game rejected, starting fresh: %v", err)
		g.apply(freshSnapshot(g.roster), revision)
		return nil
	}

	next := snap.clone()
	next.Roster = g.roster
	g.apply(next, revision)

	return nil
}
