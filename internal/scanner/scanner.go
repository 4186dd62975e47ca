package scanner

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"unicode/utf8"

	"github.com/gundog/gundog/internal/gitignore"
)

// Scanner walks a set of Sources and yields indexable file records,
// applying glob inclusion and the ignore/binary/symlink policies described
// in the package doc.
type Scanner struct {
	gitignoreCache map[string]*gitignore.Matcher
}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{gitignoreCache: make(map[string]*gitignore.Matcher)}
}

// Scan walks every source and streams discovered files on the returned
// channel. The channel is closed once all sources have been walked or ctx
// is cancelled. stats, if non-nil, is updated with atomic counters as the
// walk progresses and holds final totals once the channel closes.
func (s *Scanner) Scan(ctx context.Context, sources []Source, stats *Stats) <-chan ScanResult {
	out := make(chan ScanResult, 64)

	go func() {
		defer close(out)
		for _, src := range sources {
			if err := ctx.Err(); err != nil {
				return
			}
			s.scanSource(ctx, src, stats, out)
		}
	}()

	return out
}

func (s *Scanner) scanSource(ctx context.Context, src Source, stats *Stats, out chan<- ScanResult) {
	absRoot, err := filepath.Abs(src.Path)
	if err != nil {
		emit(ctx, out, ScanResult{Error: err})
		return
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		if err == nil {
			err = &fs.PathError{Op: "scan", Path: absRoot, Err: os.ErrInvalid}
		}
		emit(ctx, out, ScanResult{Error: err})
		return
	}

	presets := presetMatcher(src.IgnorePreset)
	explicit := newPatternMatcher(src.Ignore)
	seenInodes := make(map[inodeKey]struct{})

	_ = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}

		resolved, isDir, ok := s.resolveEntry(path, d, seenInodes)
		if !ok {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if isDir {
			if explicit.match(relPath, true) || presets.match(relPath, true) {
				return fs.SkipDir
			}
			if src.GitignoreEnabled() && s.gitignoreMatch(absRoot, relPath, true) {
				return fs.SkipDir
			}
			return nil
		}

		if stats != nil {
			atomic.AddInt64(&stats.Scanned, 1)
		}

		if !matchGlob(src.Glob, relPath) {
			if stats != nil {
				atomic.AddInt64(&stats.Skipped, 1)
			}
			return nil
		}
		if explicit.match(relPath, false) || presets.match(relPath, false) {
			if stats != nil {
				atomic.AddInt64(&stats.Skipped, 1)
			}
			return nil
		}
		if src.GitignoreEnabled() && s.gitignoreMatch(absRoot, relPath, false) {
			if stats != nil {
				atomic.AddInt64(&stats.Skipped, 1)
			}
			return nil
		}

		info, err := resolved.Info()
		if err != nil {
			return nil
		}
		if info.Size() > MaxFileSize {
			if stats != nil {
				atomic.AddInt64(&stats.Skipped, 1)
			}
			return nil
		}

		if isBinaryFile(path) {
			if stats != nil {
				atomic.AddInt64(&stats.Binary, 1)
			}
			return nil
		}

		emit(ctx, out, ScanResult{File: &FileRecord{
			SourcePath: absRoot,
			RelPath:    relPath,
			AbsPath:    path,
			Type:       src.Type,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
		}})
		return nil
	})
}

// resolveEntry follows one level of symlink indirection and reports
// whether the entry should be visited, guarding against symlink cycles via
// a (device, inode) set scoped to the current source walk.
func (s *Scanner) resolveEntry(path string, d fs.DirEntry, seen map[inodeKey]struct{}) (fs.DirEntry, bool, bool) {
	if d.Type()&fs.ModeSymlink == 0 {
		key, ok := statKey(path)
		if ok {
			if _, dup := seen[key]; dup {
				return nil, false, false
			}
			seen[key] = struct{}{}
		}
		return d, d.IsDir(), true
	}

	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, false, false
	}
	key, ok := statKey(target)
	if ok {
		if _, dup := seen[key]; dup {
			return nil, false, false
		}
		seen[key] = struct{}{}
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, false, false
	}
	return fs.FileInfoToDirEntry(info), info.IsDir(), true
}

func (s *Scanner) gitignoreMatch(absRoot, relPath string, isDir bool) bool {
	m, ok := s.gitignoreCache[absRoot]
	if !ok {
		m = gitignore.New()
		if err := m.AddFromFile(filepath.Join(absRoot, ".gitignore"), ""); err != nil {
			m = nil
		}
		s.gitignoreCache[absRoot] = m
	}
	if m == nil {
		return false
	}
	return m.Match(relPath, isDir)
}

func emit(ctx context.Context, out chan<- ScanResult, r ScanResult) {
	select {
	case out <- r:
	case <-ctx.Done():
	}
}

// isBinaryFile reads the first 8KiB of path and classifies it as binary if
// it contains a NUL byte or decodes to more than 1% invalid UTF-8 runes.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, binaryProbeSize)
	n, _ := f.Read(buf)
	buf = buf[:n]

	if bytes.IndexByte(buf, 0) != -1 {
		return true
	}

	var total, invalid int
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		total++
		if r == utf8.RuneError && size == 1 {
			invalid++
		}
		buf = buf[size:]
	}
	if total == 0 {
		return false
	}
	return float64(invalid)/float64(total) > invalidUTF8Tolerance
}
