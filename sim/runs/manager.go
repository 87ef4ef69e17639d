package runs

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/cleaning-agent-sim/logging"
	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/sim/service"
)

var (
	// ErrRunNotFound is the service sentinel so callers can match either package
	ErrRunNotFound      = service.ErrRunNotFound
	ErrRunAlreadyExists = errors.New("run already exists")
)

// idLength keeps run IDs short enough to type
const idLength = 8

// Manager is the in-memory run registry
type Manager struct {
	runs  map[string]*service.Run
	store *FileStore
	mu    sync.RWMutex
}

// NewManager creates a new run registry
func NewManager() *Manager {
	return &Manager{
		runs: make(map[string]*service.Run),
	}
}

// NewManagerWithStore creates a registry that removes persisted reports on
// delete and can be primed from them with LoadPersisted
func NewManagerWithStore(store *FileStore) *Manager {
	return &Manager{
		runs:  make(map[string]*service.Run),
		store: store,
	}
}

// Create registers a new run with a fresh ID
func (m *Manager) Create(configName string, config engine.RunConfig) (*service.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for attempt := 0; attempt < 5; attempt++ {
		id := generateRunID()
		if _, exists := m.runs[id]; exists {
			continue
		}
		run := service.NewRun(id, configName, config)
		m.runs[id] = run
		return run, nil
	}
	return nil, ErrRunAlreadyExists
}

// Get retrieves a run by ID (case-insensitive)
func (m *Manager) Get(id string) (*service.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[strings.ToLower(id)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// List returns all tracked runs
func (m *Manager) List() []*service.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Run, 0, len(m.runs))
	for _, run := range m.runs {
		result = append(result, run)
	}
	return result
}

// Delete removes a run and its persisted report, if any
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(id)
	_, inMemory := m.runs[key]
	delete(m.runs, key)

	if m.store != nil && m.store.Exists(key) {
		if err := m.store.Delete(key); err != nil {
			return fmt.Errorf("failed to delete persisted report: %w", err)
		}
		return nil
	}

	if !inMemory {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Touch updates the last accessed time for a run
func (m *Manager) Touch(id string) error {
	run, err := m.Get(id)
	if err != nil {
		return err
	}
	run.Touch()
	return nil
}

// CleanupExpired removes finished runs that haven't been accessed in maxAge.
// Running runs are never removed.
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, run := range m.runs {
		if run.Status() != service.StatusRunning && run.LastAccessedAt().Before(cutoff) {
			delete(m.runs, id)
			removed++
		}
	}

	return removed
}

// Count returns the number of tracked runs
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

// LoadPersisted restores finished runs from the report store
func (m *Manager) LoadPersisted() (int, error) {
	if m.store == nil {
		return 0, nil
	}

	reports, err := m.store.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list persisted reports: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, rep := range reports {
		key := strings.ToLower(rep.ID)
		if _, exists := m.runs[key]; exists {
			continue
		}
		m.runs[key] = service.RestoreRun(rep)
		loaded++
	}

	if loaded > 0 {
		logging.Info().
			Add(logging.Component("runs")).
			Add(logging.Count("restored", loaded)).
			Msg("loaded persisted runs")
	}
	return loaded, nil
}

// generateRunID returns the first hex characters of a random UUID
func generateRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
}
