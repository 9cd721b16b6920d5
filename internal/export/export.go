// Package export writes finished sales reports to disk as gzip-compressed
// JSON artifacts. PDF and Excel rendering is owned by the external exporter;
// those formats leave this subsystem as JSON too and are converted downstream.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	pgzip "github.com/klauspost/pgzip"

	"github.com/verdenexo/sales-engine/internal/domain/report"
)

// Writer persists report artifacts under a base directory.
type Writer struct {
	dir string
}

// NewWriter returns a Writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// Write serializes the report to <dir>/<id>.json.gz and returns the file
// path. The write goes through a temp file and rename so readers never see
// a partial artifact.
func (w *Writer) Write(rep *report.Report) (string, error) {
	path := filepath.Join(w.dir, rep.ID+".json.gz")

	tmp, err := os.CreateTemp(w.dir, rep.ID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp artifact for report %q: %w", rep.ID, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	gz := pgzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifactFrom(rep)); err != nil {
		return "", fmt.Errorf("encoding report %q: %w", rep.ID, err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("flushing report %q: %w", rep.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp artifact for report %q: %w", rep.ID, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publishing report artifact %q: %w", rep.ID, err)
	}
	return path, nil
}

// Read loads a previously written artifact.
func (w *Writer) Read(id string) (*Artifact, error) {
	f, err := os.Open(filepath.Join(w.dir, id+".json.gz"))
	if err != nil {
		return nil, fmt.Errorf("opening report artifact %q: %w", id, err)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading report artifact %q: %w", id, err)
	}
	defer func() { _ = gz.Close() }()

	var a Artifact
	if err := json.NewDecoder(gz).Decode(&a); err != nil {
		return nil, fmt.Errorf("decoding report artifact %q: %w", id, err)
	}
	return &a, nil
}

// Artifact is the on-disk JSON shape. It flattens the report into the layout
// the external exporter consumes.
type Artifact struct {
	ID          string                  `json:"id"`
	Period      report.Period           `json:"period"`
	Summary     report.Summary          `json:"summary"`
	ByCategory  []report.BreakdownEntry `json:"by_category"`
	BySeller    []report.BreakdownEntry `json:"by_seller"`
	ByProduct   []report.BreakdownEntry `json:"by_product"`
	Metrics     report.Metrics          `json:"metrics"`
	Comparison  report.Comparison       `json:"comparison"`
	GeneratedBy string                  `json:"generated_by"`
	GeneratedAt string                  `json:"generated_at"`
	Filters     report.Filters          `json:"filters"`
	Output      report.OutputConfig     `json:"output"`
}

func artifactFrom(rep *report.Report) Artifact {
	return Artifact{
		ID:          rep.ID,
		Period:      rep.Period,
		Summary:     rep.Summary,
		ByCategory:  rep.ByCategory,
		BySeller:    rep.BySeller,
		ByProduct:   rep.ByProduct,
		Metrics:     rep.Metrics,
		Comparison:  rep.Comparison,
		GeneratedBy: rep.GeneratedBy,
		GeneratedAt: rep.GeneratedAt.UTC().Format(time.RFC3339),
		Filters:     rep.Filters,
		Output:      rep.Output,
	}
}
