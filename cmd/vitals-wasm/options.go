package main

import "github.com/obsidianstack/vitals/internal/config"

// applyFlags copies the boolean page options that lookup finds into cfg.
// lookup reports false for keys that are absent or not booleans.
func applyFlags(cfg *config.EngineConfig, lookup func(key string) (bool, bool)) {
	flags := map[string]*bool{
		"enableReporting": &cfg.EnableReporting,
		"debug":           &cfg.Debug,
	}
	for key, dst := range flags {
		if b, ok := lookup(key); ok {
			*dst = b
		}
	}
}
