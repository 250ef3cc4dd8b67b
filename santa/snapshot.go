/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package santa

import (
	"fmt"
	"maps"
	"slices"
)

// Snapshot is the persisted shape of a game.
type Snapshot struct {
	Roster   []string          `json:"roster"`
	Pool     []string          `json:"pool"`
	Assigned map[string]string `json:"assigned"`
}

func freshSnapshot(roster []string) Snapshot {
	return Snapshot{
		Roster:   slices.Clone(roster),
		Pool:     slices.Clone(roster),
		Assigned: make(map[string]string, len(roster)),
	}
}

func (s Snapshot) clone() Snapshot {
	assigned := maps.Clone(s.Assigned)
	if assigned == nil {
		assigned = make(map[string]string)
	}

	return Snapshot{
		Roster:   slices.Clone(s.Roster),
		Pool:     slices.Clone(s.Pool),
		Assigned: assigned,
	}
}

// Validate reports ErrCorruptState unless every roster member is either in the pool
// or assigned to exactly one giver, and nobody is assigned to themselves.
func (s Snapshot) Validate() error {
	members := make(map[string]bool, len(s.Roster))
	for _, name := range s.Roster {
		members[name] = true
	}

	seen := make(map[string]string, len(s.Roster))

	for _, name := range s.Pool {
		if !members[name] {
			return fmt.Errorf("%w: pool member %q is not on the roster", ErrCorruptState, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q appears in the pool twice", ErrCorruptState, name)
		}
		seen[name] = ""
	}

	for giver, recipient := range s.Assigned {
		if !members[giver] || !members[recipient] {
			return fmt.Errorf("%w: assignment %q -> %q is not on the roster", ErrCorruptState, giver, recipient)
		}
		if giver == recipient {
			return fmt.Errorf("%w: %q is assigned to themselves", ErrCorruptState, giver)
		}
		if other, dup := seen[recipient]; dup {
			if other == "" {
				return fmt.Errorf("%w: %q is both in the pool and assigned", ErrCorruptState, recipient)
			}
			return fmt.Errorf("%w: %q is assigned to both %q and %q", ErrCorruptState, recipient, other, giver)
		}
		seen[recipient] = giver
	}

	if len(seen) != len(s.Roster) {
		return fmt.Errorf("%w: %d of %d roster members accounted for", ErrCorruptState, len(seen), len(s.Roster))
	}

	return nil
}
