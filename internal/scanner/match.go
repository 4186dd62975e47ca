package scanner

import "github.com/gundog/gundog/internal/gitignore"

// patternMatcher adapts gitignore's wildmatch engine to the ignore-list and
// glob-inclusion checks the scanner needs, without tying either to
// gitignore's "ignore" framing.
type patternMatcher struct {
	m *gitignore.Matcher
}

func newPatternMatcher(patterns []string) *patternMatcher {
	pm := &patternMatcher{m: gitignore.New()}
	pm.add(patterns)
	return pm
}

func (pm *patternMatcher) add(patterns []string) {
	for _, p := range patterns {
		pm.m.AddPattern(p)
	}
}

func (pm *patternMatcher) match(relPath string, isDir bool) bool {
	if pm == nil {
		return false
	}
	return pm.m.Match(relPath, isDir)
}

// matchGlob reports whether relPath (relative to a source root) matches the
// source's glob pattern. An empty glob matches everything.
func matchGlob(glob, relPath string) bool {
	if glob == "" {
		return true
	}
	m := gitignore.New()
	m.AddPattern(glob)
	return m.Match(relPath, false)
}
