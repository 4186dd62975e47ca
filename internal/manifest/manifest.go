// Package manifest defines the per-index manifest: the authoritative
// record of embedding configuration and ingested file state (spec §3).
// Its atomic replacement on disk (shadow-write then rename) is the point
// at which an ingest's effects become visible to readers (I4).
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FormatVersion is the current on-disk manifest schema version.
const FormatVersion = 1

// FileEntry records the ingested state of one source file.
type FileEntry struct {
	ContentHash       string     `json:"content_hash"`
	MTime             time.Time  `json:"mtime"`
	Size              int64      `json:"size"`
	DocID             string     `json:"doc_id"`
	Type              string     `json:"type,omitempty"`
	ChunkCount        int        `json:"chunk_count"`
	GitLastCommitTime *time.Time `json:"git_last_commit_time,omitempty"`
}

// Manifest is the per-index metadata file described in spec §3/§4.7/I4.
type Manifest struct {
	FormatVersion      int                  `json:"format_version"`
	EmbeddingModel     string               `json:"embedding_model"`
	EmbeddingDimension int                  `json:"embedding_dimension"`
	ChunkingEnabled    bool                 `json:"chunking_enabled"`
	ChunkingMaxTokens  int                  `json:"chunking_max_tokens"`
	ChunkingOverlap    int                  `json:"chunking_overlap"`
	StorageBackend     string               `json:"storage_backend"`
	Files              map[string]FileEntry `json:"files"` // relative_path -> entry
	LastIngestAt       time.Time            `json:"last_ingest_at"`
}

// Empty returns a zero-value manifest suitable for a project's first
// ingest: no files, format version set, embedding/backend identity left
// for the caller to stamp before the first write.
func Empty() *Manifest {
	return &Manifest{
		FormatVersion: FormatVersion,
		Files:         make(map[string]FileEntry),
	}
}

// DocID derives the stable document id for relPath: sha256(relPath) as
// hex. Stable across re-ingests since it depends only on the path.
func DocID(relPath string) string {
	sum := sha256.Sum256([]byte(relPath))
	return hex.EncodeToString(sum[:])
}

// ChunkID derives the id used for a chunk's vector/keyword entry.
func ChunkID(docID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", docID, chunkIndex)
}

// Load reads the manifest at path. A missing file yields Empty(), not an
// error (spec §4.7 step 1: "Load manifest (if missing, treat as empty)").
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Files == nil {
		m.Files = make(map[string]FileEntry)
	}
	return &m, nil
}

// SaveAtomic writes m to a shadow file in the same directory as path,
// fsyncs it, then renames it onto path (I4). The rename is the single
// point at which the new manifest becomes visible to a fresh Load.
func (m *Manifest) SaveAtomic(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	shadow := filepath.Join(filepath.Dir(path), "shadow.manifest.json")
	f, err := os.Create(shadow)
	if err != nil {
		return fmt.Errorf("create shadow manifest: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(shadow)
		return fmt.Errorf("write shadow manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(shadow)
		return fmt.Errorf("fsync shadow manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(shadow)
		return fmt.Errorf("close shadow manifest: %w", err)
	}
	return os.Rename(shadow, path)
}

// MatchesEmbedder reports whether model and dim agree with the manifest's
// recorded embedding identity. A load whose manifest disagrees MUST
// refuse to serve queries (spec §3 invariant, FATAL taxonomy §7) -- the
// empty manifest (no files yet ingested) always matches, since there is
// nothing yet to conflict with.
func (m *Manifest) MatchesEmbedder(model string, dim int) bool {
	if len(m.Files) == 0 && m.EmbeddingModel == "" {
		return true
	}
	return m.EmbeddingModel == model && m.EmbeddingDimension == dim
}
