// Package similarity detects probable renames and moves of script
// assets by comparing structural fingerprints within a domain.
package similarity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/PentesterFlow/ScriptSentry/internal/errors"
	"github.com/PentesterFlow/ScriptSentry/internal/logger"
	"github.com/PentesterFlow/ScriptSentry/internal/store"
)

// Threshold is the minimum score for reporting a rename candidate.
const Threshold = 0.70

// Candidate is one probable rename match.
type Candidate struct {
	URL   string
	Score float64
}

// Engine compares fingerprints within a domain partition.
type Engine struct {
	log *logger.Logger
}

// NewEngine creates a similarity engine.
func NewEngine(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Global()
	}
	return &Engine{log: log.WithComponent("similarity")}
}

// Score computes the weighted similarity between two fingerprints:
// 0.4·Jaccard(functions) + 0.3·Jaccard(imports) + 0.3·hash equality.
func Score(a, b *Fingerprint) float64 {
	if a == nil || b == nil {
		return 0.0
	}

	funcSim := jaccard(a.FunctionSignatures, b.FunctionSignatures)
	importSim := jaccard(a.ImportExports, b.ImportExports)

	hashSim := 0.0
	if a.ContentHash == b.ContentHash {
		hashSim = 1.0
	}

	return funcSim*0.4 + importSim*0.3 + hashSim*0.3
}

// jaccard computes |A∩B| / |A∪B|. Two empty sets score 0, keeping the
// overall similarity conservative.
func jaccard(a, b []string) float64 {
	union := make(map[string]bool, len(a)+len(b))
	inA := make(map[string]bool, len(a))
	for _, item := range a {
		union[item] = true
		inA[item] = true
	}

	intersection := 0
	for _, item := range b {
		if !union[item] {
			union[item] = true
		}
		if inA[item] {
			inA[item] = false
			intersection++
		}
	}

	if len(union) == 0 {
		return 0.0
	}
	return float64(intersection) / float64(len(union))
}

// FindRenameCandidates fingerprints a newly-seen asset, compares it
// against every stored fingerprint of the same domain, and persists the
// new fingerprint regardless of the outcome. Candidates scoring at or
// above Threshold are returned sorted by descending score.
func (e *Engine) FindRenameCandidates(assetURL, normalizedText, fingerprintDir string) ([]Candidate, error) {
	if err := os.MkdirAll(fingerprintDir, 0o755); err != nil {
		return nil, errors.NewStoreError(assetURL, "fingerprint_dir", err)
	}

	fp := NewFingerprint(assetURL, normalizedText)

	var candidates []Candidate
	entries, err := os.ReadDir(fingerprintDir)
	if err != nil {
		return nil, errors.NewStoreError(assetURL, "read_fingerprints", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(fingerprintDir, entry.Name()))
		if err != nil {
			continue
		}
		var existing Fingerprint
		if err := json.Unmarshal(data, &existing); err != nil {
			e.log.Warnf("Skipping corrupt fingerprint: %s", entry.Name())
			continue
		}
		if existing.URL == assetURL {
			continue
		}

		if score := Score(fp, &existing); score >= Threshold {
			candidates = append(candidates, Candidate{URL: existing.URL, Score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].URL < candidates[j].URL
	})

	if err := e.saveFingerprint(fingerprintDir, assetURL, fp); err != nil {
		return candidates, err
	}

	for _, c := range candidates {
		e.log.RenameEvent(assetURL, c.URL, c.Score)
	}
	return candidates, nil
}

// saveFingerprint writes the fingerprint keyed by the asset's stable
// storage key. Existing fingerprints are never rewritten.
func (e *Engine) saveFingerprint(dir, assetURL string, fp *Fingerprint) error {
	path := filepath.Join(dir, store.StorageKey(assetURL)+".json")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	data, err := json.MarshalIndent(fp, "", "    ")
	if err != nil {
		return errors.NewStoreError(assetURL, "save_fingerprint", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewStoreError(assetURL, "save_fingerprint", err)
	}
	return nil
}
