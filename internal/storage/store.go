// Package storage archives run reports on disk: one directory per run holding
// the configuration, final report and integration counters as JSON. Sampled
// trajectories are not kept.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/san-kum/robustflow/internal/config"
	"github.com/san-kum/robustflow/internal/diagnostics"
	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/flow"
)

const metadataFile = "metadata.json"

// ErrRunNotFound is returned when a run ID has no metadata on disk.
var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string              `json:"id"`
	Problem     string              `json:"problem"`
	Timestamp   time.Time           `json:"timestamp"`
	Integrator  string              `json:"integrator"`
	Bound       float64             `json:"bound"`
	Epsilon     float64             `json:"epsilon"`
	Layout      flow.Layout         `json:"layout"`
	Samples     int                 `json:"samples"`
	Steps       int                 `json:"steps"`
	Rejected    int                 `json:"rejected"`
	Evaluations int                 `json:"evaluations"`
	Metrics     map[string]float64  `json:"metrics"`
	Report      *diagnostics.Report `json:"report,omitempty"`
	Config      *config.Config      `json:"config"`
}

// Save writes a run and returns its ID. report is nil for a failed
// integration; the counters and metrics of the partial result are still kept.
func (s *Store) Save(cfg *config.Config, layout flow.Layout, bound float64, result *dynamo.Result, report *diagnostics.Report) (string, error) {
	if result == nil {
		return "", fmt.Errorf("storage: nothing to save")
	}
	ts := s.now()
	runID := fmt.Sprintf("%s_%s", cfg.Problem, ts.Format("20060102T150405.000"))
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Problem:     cfg.Problem,
		Timestamp:   ts,
		Integrator:  cfg.Integrator,
		Bound:       bound,
		Epsilon:     cfg.Epsilon,
		Layout:      layout,
		Samples:     len(result.States),
		Steps:       result.StepsTaken,
		Rejected:    result.Rejected,
		Evaluations: result.Evaluations,
		Metrics:     result.Metrics,
		Report:      report,
		Config:      cfg,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// List returns saved runs, oldest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", runID, err)
	}
	return &meta, nil
}
