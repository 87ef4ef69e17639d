// Package config provides run preset management for the cleaning agent simulator.
//
// The config package handles:
//   - Loading run presets from JSON and YAML files
//   - Preset validation through engine.ValidateRunConfig
//   - Default preset selection
//   - Preset discovery and listing
//
// Preset Format:
//
// Presets live in the configs directory as name.json, name.yaml or name.yml.
// Each preset defines the grid size, obstacle and dirt densities, the
// agent's sensor range, initial energy and start cell, the idle limit and
// the random seed. A preset may instead carry a fixed layout using '.'
// for clean, '#' for obstacle and '*' for dirt, plus an optional cost
// tuning block.
//
// Available Presets:
//   - classic: 10x10 room with light clutter, the default
//   - cluttered: dense obstacles that often box the agent in
//   - open_floor: larger room with no obstacles
//   - dense: YAML preset with heavy dirt and a tight energy budget
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cfg, err := manager.LoadConfig("cluttered")
//	defaultCfg := manager.GetDefault()
//	presets, err := manager.ListConfigs()
//
// Loaded presets are cached; every call returns a copy so callers may
// apply overrides without affecting the cache.
package config
