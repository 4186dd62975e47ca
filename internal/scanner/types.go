// Package scanner walks configured source roots and yields indexable file
// records, applying glob, ignore, and binary-detection policy.
package scanner

import "time"

// IgnorePreset names a built-in ignore pattern list for a common ecosystem.
type IgnorePreset string

const (
	PresetGo     IgnorePreset = "go"
	PresetNode   IgnorePreset = "node"
	PresetPython IgnorePreset = "python"
	PresetRust   IgnorePreset = "rust"
)

// Source declares one ingestion root: a directory plus the glob and
// ignore policy applied to files found under it.
type Source struct {
	Path         string       `yaml:"path"`
	Glob         string       `yaml:"glob"`
	Type         string       `yaml:"type,omitempty"`
	IgnorePreset IgnorePreset `yaml:"ignore_preset,omitempty"`
	Ignore       []string     `yaml:"ignore,omitempty"`
	// UseGitignore is a pointer so config loading can distinguish "absent
	// from YAML" (defaults to true) from an explicit false.
	UseGitignore *bool `yaml:"use_gitignore,omitempty"`
	// Watch opts this source into fsnotify-based live reindexing (see
	// internal/watch).
	Watch bool `yaml:"watch,omitempty"`
}

// GitignoreEnabled reports the effective use_gitignore setting, applying
// the documented default of true when the source left it unset.
func (s Source) GitignoreEnabled() bool {
	if s.UseGitignore == nil {
		return true
	}
	return *s.UseGitignore
}

// FileRecord describes one discovered, indexable file.
type FileRecord struct {
	SourcePath string // absolute path of the source root this file was found under
	RelPath    string // path relative to SourcePath
	AbsPath    string
	Type       string // propagated from Source.Type
	Size       int64
	ModTime    time.Time
}

// ScanResult is delivered on the Scan channel: exactly one of File or Error
// is set.
type ScanResult struct {
	File  *FileRecord
	Error error
}

// Stats accumulates counters across a scan. Safe for concurrent use; read
// fields only after the result channel has been drained and closed.
type Stats struct {
	Scanned int64
	Skipped int64
	Binary  int64
}

// MaxFileSize is the default maximum file size considered for scanning.
const MaxFileSize = 10 * 1024 * 1024

// binaryProbeSize is the number of leading bytes read for binary detection.
const binaryProbeSize = 8192

// invalidUTF8Tolerance is the maximum fraction of invalid UTF-8 runes
// tolerated before a file is classified as binary.
const invalidUTF8Tolerance = 0.01
