// Package store persists script assets per domain and detects content
// changes between scan cycles.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/PentesterFlow/ScriptSentry/internal/errors"
	"github.com/PentesterFlow/ScriptSentry/internal/logger"
	"github.com/PentesterFlow/ScriptSentry/internal/normalize"
)

// Status describes the outcome of observing an asset.
type Status string

// Observation statuses.
const (
	StatusNew       Status = "NEW"
	StatusModified  Status = "MODIFIED"
	StatusUnchanged Status = "UNCHANGED"
	StatusError     Status = "ERROR"
)

// ChangeRecord is the per-observation outcome consumed by the
// orchestrator and notifier. It is never persisted as its own entity.
type ChangeRecord struct {
	URL            string
	Status         Status
	Size           int
	Lines          int
	Added          int
	Removed        int
	Diff           string
	RawPath        string
	NormalizedPath string
}

// hashEntry is one row of a domain's hash map file.
type hashEntry struct {
	Hash           string `json:"hash"`
	Timestamp      string `json:"timestamp"`
	Size           int    `json:"size"`
	Lines          int    `json:"lines"`
	NormalizedPath string `json:"beautified_path"`
}

// Store is the content-addressed change detector. All persisted state
// lives under baseDir, partitioned by sanitized domain.
type Store struct {
	baseDir    string
	normalizer *normalize.Normalizer
	log        *logger.Logger
}

// New creates a Store rooted at baseDir, creating it if needed.
func New(baseDir string, normalizer *normalize.Normalizer, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global()
	}
	if normalizer == nil {
		normalizer = normalize.New(log)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.NewStoreError("", "init", err)
	}
	return &Store{
		baseDir:    baseDir,
		normalizer: normalizer,
		log:        log.WithComponent("store"),
	}, nil
}

// BaseDir returns the store root.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// SanitizeDomain substitutes characters illegal in path segments.
func SanitizeDomain(domain string) string {
	return strings.ReplaceAll(domain, ":", "_")
}

// DomainDir returns the partition directory for a domain.
func (s *Store) DomainDir(domain string) string {
	return filepath.Join(s.baseDir, SanitizeDomain(domain))
}

// EndpointFile returns the path of a domain's accumulated endpoint set.
// The file is owned by the extractor, not the store.
func (s *Store) EndpointFile(domain string) string {
	return filepath.Join(s.DomainDir(domain), "endpoints", "all-endpoints.json")
}

// FingerprintDir returns the directory holding a domain's fingerprints.
// The directory is owned by the similarity engine, not the store.
func (s *Store) FingerprintDir(domain string) string {
	return filepath.Join(s.DomainDir(domain), "fingerprints")
}

// StorageKey derives a stable per-asset file key: a readable slug from
// the last path segment plus a URL digest to avoid collisions and
// pathological path lengths.
func StorageKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	urlHash := hex.EncodeToString(sum[:])[:16]

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return urlHash
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	filename := "index"
	if len(segments) > 0 && segments[len(segments)-1] != "" {
		filename = segments[len(segments)-1]
	}
	if idx := strings.Index(filename, "?"); idx >= 0 {
		filename = filename[:idx]
	}
	filename = strings.ReplaceAll(filename, ".js", "")
	if len(filename) > 50 {
		filename = filename[:50]
	}

	return fmt.Sprintf("%s_%s", filename, urlHash)
}

// assetPaths holds the resolved per-asset file locations.
type assetPaths struct {
	rawPath        string
	normalizedPath string
	hashesPath     string
}

// resolvePaths ensures the domain partition's subdirectories exist and
// returns the per-asset file paths.
func (s *Store) resolvePaths(domain, rawURL string) (assetPaths, error) {
	domainDir := s.DomainDir(domain)

	subdirs := []string{"original", "beautified", "diffs", "endpoints", "fingerprints"}
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(domainDir, sub), 0o755); err != nil {
			return assetPaths{}, errors.NewStoreError(rawURL, "mkdir", err)
		}
	}

	key := StorageKey(rawURL)
	return assetPaths{
		rawPath:        filepath.Join(domainDir, "original", key+".js"),
		normalizedPath: filepath.Join(domainDir, "beautified", key+".js"),
		hashesPath:     filepath.Join(domainDir, "hashes.json"),
	}, nil
}

// loadHashes reads a domain's full hash map. A missing or corrupt file
// counts as an empty starting state; only a read failure on an existing
// file is an error.
func (s *Store) loadHashes(path string) (map[string]hashEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]hashEntry), nil
		}
		return nil, errors.NewStoreError("", "load_hashes", err)
	}

	hashes := make(map[string]hashEntry)
	if err := json.Unmarshal(data, &hashes); err != nil {
		s.log.Warnf("Corrupt hash map, starting empty: %s", path)
		return make(map[string]hashEntry), nil
	}
	return hashes, nil
}

// saveHashes persists the full hash map atomically enough for a single
// writer (write temp, rename).
func (s *Store) saveHashes(path string, hashes map[string]hashEntry) error {
	data, err := json.MarshalIndent(hashes, "", "    ")
	if err != nil {
		return errors.NewStoreError("", "save_hashes", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.NewStoreError("", "save_hashes", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.NewStoreError("", "save_hashes", err)
	}
	return nil
}

// writeArtifacts stages the raw and normalized files and renames them
// into place only after both writes succeed, so a failed write cannot
// leave the pair half updated.
func writeArtifacts(paths assetPaths, raw, normalized []byte) error {
	rawTmp := paths.rawPath + ".tmp"
	normTmp := paths.normalizedPath + ".tmp"

	if err := os.WriteFile(rawTmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(normTmp, normalized, 0o644); err != nil {
		os.Remove(rawTmp)
		return err
	}
	if err := os.Rename(rawTmp, paths.rawPath); err != nil {
		os.Remove(normTmp)
		return err
	}
	return os.Rename(normTmp, paths.normalizedPath)
}

// generateDiff computes a unified diff between old and new normalized
// text and counts added/removed lines, excluding the file headers.
func generateDiff(oldContent, newContent string) (string, int, int, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: "old",
		ToFile:   "new",
		Context:  3,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", 0, 0, err
	}

	added, removed := 0, 0
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}

	return text, added, removed, nil
}

// Observe records a single asset observation and returns its status.
// contentHash must be a deterministic digest of raw computed by the
// caller. On any failure the status is ERROR and no state is mutated.
func (s *Store) Observe(rawURL string, raw []byte, contentHash string) (Status, *ChangeRecord, error) {
	if len(raw) == 0 {
		return StatusError, nil, errors.NewStoreError(rawURL, "observe", fmt.Errorf("empty content"))
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return StatusError, nil, errors.NewStoreError(rawURL, "observe", fmt.Errorf("cannot resolve domain: %v", err))
	}
	domain := parsed.Host

	paths, err := s.resolvePaths(domain, rawURL)
	if err != nil {
		return StatusError, nil, err
	}

	hashes, err := s.loadHashes(paths.hashesPath)
	if err != nil {
		return StatusError, nil, err
	}

	existing, seen := hashes[rawURL]
	if seen && existing.Hash == contentHash {
		return StatusUnchanged, &ChangeRecord{
			URL:            rawURL,
			Status:         StatusUnchanged,
			NormalizedPath: paths.normalizedPath,
		}, nil
	}

	normalized := s.normalizer.Normalize(rawURL, string(raw))
	record := &ChangeRecord{
		URL:            rawURL,
		Status:         StatusNew,
		Size:           len(raw),
		Lines:          countLines(normalized),
		RawPath:        paths.rawPath,
		NormalizedPath: paths.normalizedPath,
	}

	if seen {
		record.Status = StatusModified

		oldPath := existing.NormalizedPath
		if oldPath == "" {
			oldPath = paths.normalizedPath
		}
		oldContent := ""
		if data, err := os.ReadFile(oldPath); err == nil {
			oldContent = string(data)
		}

		diff, added, removed, err := generateDiff(oldContent, normalized)
		if err != nil {
			return StatusError, nil, errors.NewStoreError(rawURL, "diff", err)
		}
		record.Diff = diff
		record.Added = added
		record.Removed = removed
	}

	if err := writeArtifacts(paths, raw, []byte(normalized)); err != nil {
		return StatusError, nil, errors.NewStoreError(rawURL, "write_artifacts", err)
	}

	hashes[rawURL] = hashEntry{
		Hash:           contentHash,
		Timestamp:      time.Now().Format(time.RFC3339),
		Size:           record.Size,
		Lines:          record.Lines,
		NormalizedPath: paths.normalizedPath,
	}
	if err := s.saveHashes(paths.hashesPath, hashes); err != nil {
		return StatusError, nil, err
	}

	s.log.AssetEvent(string(record.Status), rawURL, record.Size, record.Added, record.Removed)
	return record.Status, record, nil
}

// NormalizedPathFor returns where an asset's normalized text lives, for
// callers that re-process unchanged assets.
func (s *Store) NormalizedPathFor(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", errors.NewStoreError(rawURL, "resolve", fmt.Errorf("cannot resolve domain: %v", err))
	}
	return filepath.Join(s.DomainDir(parsed.Host), "beautified", StorageKey(rawURL)+".js"), nil
}

// ContentHash computes the digest used for change detection.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func countLines(text string) int {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}
