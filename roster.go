/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

// rosterFile is the layout of the --roster file:
//
//	coordinator: Alice
//	participants:
//	  - Alice
//	  - Bob
type rosterFile struct {
	Coordinator  string   `yaml:"coordinator"`
	Participants []string `yaml:"participants"`
}

// loadRoster merges the roster file with any --participant flags and returns
// the participant list along with the coordinator, if one is configured.
func loadRoster(cfg *Config) ([]string, string, error) {
	var file rosterFile

	if cfg.rosterFile != "" {
		data, err := os.ReadFile(cfg.rosterFile)
		if err != nil {
			return nil, "", fmt.Errorf("reading roster: %w", err)
		}

		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, "", fmt.Errorf("parsing roster %s: %w", cfg.rosterFile, err)
		}
	}

	roster := make([]string, 0, len(file.Participants)+len(cfg.participants))
	for _, name := range slices.Concat(file.Participants, cfg.participants) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		roster = append(roster, name)
	}

	coordinator := strings.TrimSpace(file.Coordinator)
	if cfg.coordinator != "" {
		coordinator = strings.TrimSpace(cfg.coordinator)
	}

	if coordinator != "" && !slices.Contains(roster, coordinator) {
		return nil, "", fmt.Errorf("coordinator %q is not a participant", coordinator)
	}

	return roster, coordinator, nil
}

// gameKey names the stored game. Restarting with the same roster picks the
// same game back up; changing the roster starts a new one.
func gameKey(cfg *Config, roster []string) string {
	if cfg.gameID != "" {
		return cfg.gameID
	}

	return fmt.Sprintf("game-%016x", xxh3.HashString(strings.Join(roster, "\x00")))
}
