package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wricardo/cleaning-agent-sim/logging"
	"github.com/wricardo/cleaning-agent-sim/sim/service"
)

// Report file formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var ErrReportNotFound = errors.New("report not found")

// FileStore persists run reports as one file per run
type FileStore struct {
	dir    string
	format string
}

// NewFileStore creates a report store writing format ("json" or "yaml")
func NewFileStore(dir, format string) (*FileStore, error) {
	switch format {
	case "", FormatJSON:
		format = FormatJSON
	case FormatYAML, "yml":
		format = FormatYAML
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	return &FileStore{dir: dir, format: format}, nil
}

// Dir returns the directory reports are written to
func (fs *FileStore) Dir() string {
	return fs.dir
}

// Save writes a report, replacing any earlier one for the same run
func (fs *FileStore) Save(rep *service.Report) error {
	if rep == nil {
		return fmt.Errorf("report cannot be nil")
	}
	if rep.ID == "" || filepath.Base(rep.ID) != rep.ID {
		return fmt.Errorf("invalid report id: %q", rep.ID)
	}

	var (
		data []byte
		err  error
	)
	if fs.format == FormatYAML {
		data, err = yaml.Marshal(rep)
	} else {
		data, err = json.MarshalIndent(rep, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(fs.path(rep.ID, fs.format), data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// Load reads a report by run ID in either format
func (fs *FileStore) Load(id string) (*service.Report, error) {
	path, format, ok := fs.find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return readReport(path, format)
}

func readReport(path, format string) (*service.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var rep service.Report
	if format == FormatYAML {
		err = yaml.Unmarshal(data, &rep)
	} else {
		err = json.Unmarshal(data, &rep)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", filepath.Base(path), err)
	}
	return &rep, nil
}

// List loads every readable report, ordered by ID. Unreadable files are
// logged and skipped.
func (fs *FileStore) List() ([]*service.Report, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	var reports []*service.Report
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, ok := formatOf(entry.Name())
		if !ok {
			continue
		}
		rep, err := readReport(filepath.Join(fs.dir, entry.Name()), format)
		if err != nil {
			logging.Warn().
				Add(logging.Component("runs")).
				Add(logging.Str("file", entry.Name())).
				Add(logging.ErrorField(err)).
				Msg("skipping unreadable report")
			continue
		}
		reports = append(reports, rep)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].ID < reports[j].ID })
	return reports, nil
}

// Delete removes a report
func (fs *FileStore) Delete(id string) error {
	path, _, ok := fs.find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove report file: %w", err)
	}
	return nil
}

// Exists checks if a report exists for the run
func (fs *FileStore) Exists(id string) bool {
	_, _, ok := fs.find(id)
	return ok
}

func (fs *FileStore) find(id string) (string, string, bool) {
	for _, format := range []string{FormatJSON, FormatYAML} {
		path := fs.path(id, format)
		if _, err := os.Stat(path); err == nil {
			return path, format, true
		}
	}
	return "", "", false
}

func (fs *FileStore) path(id, format string) string {
	return filepath.Join(fs.dir, fmt.Sprintf("%s.%s", id, format))
}

func formatOf(name string) (string, bool) {
	switch {
	case strings.HasSuffix(name, ".json"):
		return FormatJSON, true
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		return FormatYAML, true
	}
	return "", false
}
