package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/sim/service"
)

var (
	// ErrConfigNotFound is the service sentinel so callers can match either package
	ErrConfigNotFound = service.ErrConfigNotFound
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// extensions are tried in order when a name has none
var extensions = []string{".json", ".yaml", ".yml"}

// Manager handles run preset loading and caching
type Manager struct {
	configDir     string
	defaultConfig *engine.RunConfig
	configs       map[string]*engine.RunConfig
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*engine.RunConfig),
	}

	if err := m.loadDefaultConfig(); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	return m, nil
}

func hasExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// trimExtension strips a known preset extension
func trimExtension(name string) string {
	if hasExtension(name) {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

// resolve finds the file backing a preset name
func (m *Manager) resolve(name string) (string, error) {
	candidates := []string{name}
	if !hasExtension(name) {
		candidates = candidates[:0]
		for _, ext := range extensions {
			candidates = append(candidates, name+ext)
		}
	}
	for _, c := range candidates {
		path := filepath.Join(m.configDir, c)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrConfigNotFound, name)
}

// Decode parses a preset by file extension
func Decode(path string, data []byte) (*engine.RunConfig, error) {
	var cfg engine.RunConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return &cfg, nil
}

// LoadConfig loads a preset by name. The name may carry a .json, .yaml or
// .yml extension; without one they are tried in that order.
func (m *Manager) LoadConfig(name string) (*engine.RunConfig, error) {
	key := trimExtension(name)

	m.mu.RLock()
	if config, exists := m.configs[key]; exists {
		m.mu.RUnlock()
		return clone(config), nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if config, exists := m.configs[key]; exists {
		return clone(config), nil
	}

	path, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Decode(path, data)
	if err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = key
	}
	if err := engine.ValidateRunConfig(*config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	m.configs[key] = config
	return clone(config), nil
}

// clone hands out copies so callers can apply overrides freely
func clone(c *engine.RunConfig) *engine.RunConfig {
	out := *c
	out.Layout = append([]string(nil), c.Layout...)
	if c.Tuning != nil {
		t := *c.Tuning
		out.Tuning = &t
	}
	return &out
}

// ListConfigs returns information about all loadable presets. Invalid files are skipped.
func (m *Manager) ListConfigs() ([]*service.ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []*service.ConfigInfo
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !hasExtension(entry.Name()) {
			continue
		}

		id := trimExtension(entry.Name())
		if seen[id] {
			continue
		}

		config, err := m.LoadConfig(entry.Name())
		if err != nil {
			continue
		}
		seen[id] = true

		configs = append(configs, &service.ConfigInfo{
			Filename:        entry.Name(),
			ConfigID:        id,
			Name:            config.Name,
			Description:     config.Description,
			Width:           config.Width,
			Height:          config.Height,
			ObstacleDensity: config.ObstacleDensity,
			DirtDensity:     config.DirtDensity,
			InitialEnergy:   config.InitialEnergy,
		})
	}

	return configs, nil
}

// GetDefault returns the default preset
func (m *Manager) GetDefault() *engine.RunConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.defaultConfig)
}

// SetDefault sets the default preset by name
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = config
	return nil
}

// RefreshCache drops cached presets and reloads the default from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.configs = make(map[string]*engine.RunConfig)
	m.mu.Unlock()

	return m.loadDefaultConfig()
}

// loadDefaultConfig picks classic, then the first loadable preset, then a built-in
func (m *Manager) loadDefaultConfig() error {
	config, err := m.LoadConfig("classic")
	if err != nil {
		config = nil
		if configs, listErr := m.ListConfigs(); listErr == nil && len(configs) > 0 {
			config, _ = m.LoadConfig(configs[0].Filename)
		}
		if config == nil {
			config = m.createMinimalConfig()
		}
	}

	m.mu.Lock()
	m.defaultConfig = config
	m.mu.Unlock()
	return nil
}

// SaveConfig validates and writes a preset. The format follows the name's
// extension and defaults to JSON.
func (m *Manager) SaveConfig(name string, config *engine.RunConfig) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := engine.ValidateRunConfig(*config); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	filename := name
	if !hasExtension(filename) {
		filename = name + ".json"
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("%w: config name must not contain a path: %s", ErrInvalidConfig, name)
	}
	configPath := filepath.Join(m.configDir, filename)

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[trimExtension(name)] = clone(config)
	m.mu.Unlock()

	return nil
}

// createMinimalConfig is used when the directory holds no loadable preset
func (m *Manager) createMinimalConfig() *engine.RunConfig {
	cfg := engine.DefaultRunConfig()
	cfg.Name = "default"
	cfg.Description = "Default minimal configuration"
	return &cfg
}
