package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"unreeled/internal/release"
)

// Document is the day artifact: everything ingested for one calendar date,
// plus enough bookkeeping to tell how complete the run was.
type Document struct {
	Date           string            `json:"date"`
	IngestedAt     time.Time         `json:"ingested_at"`
	TotalReleases  int               `json:"total_releases"`
	SourceStats    map[string]int    `json:"source_stats"`
	FiltersApplied map[string]any    `json:"filters_applied"`
	Errors         map[string]string `json:"errors,omitempty"`
	Releases       []release.Record  `json:"releases"`
}

// ArtifactName returns the artifact filename for a date.
func ArtifactName(date string) string {
	return fmt.Sprintf("releases_%s.json", date)
}

// WriteArtifact persists the document under dataDir, writing to a temp file
// and renaming so readers never observe a partial artifact.
func WriteArtifact(dataDir string, doc *Document) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}

	final := filepath.Join(dataDir, ArtifactName(doc.Date))
	tmp, err := os.CreateTemp(dataDir, ".releases-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return final, nil
}

// ReadArtifact loads the day artifact for a date, if one exists.
func ReadArtifact(dataDir, date string) (*Document, error) {
	payload, err := os.ReadFile(filepath.Join(dataDir, ArtifactName(date)))
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode artifact for %s: %w", date, err)
	}
	return &doc, nil
}
