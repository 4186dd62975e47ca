// Package gitignore implements the gitignore pattern syntax
// (https://git-scm.com/docs/gitignore): wildcards, rooted patterns,
// negation, directory-only patterns, and nested per-directory
// .gitignore files.
//
// internal/scanner is gitignore's only consumer, and uses it for two
// distinct roles: honoring a source tree's real .gitignore files
// during a scan (Scanner.gitignoreMatch), and reusing the same
// wildmatch engine to evaluate a Source's ignore list and glob
// pattern (scanner.patternMatcher) -- there is no second matcher
// implementation for glob inclusion, since gitignore's pattern syntax
// already covers it.
//
// Usage:
//
//	m := gitignore.New()
//	m.AddPattern("*.log")
//	m.AddPattern("!important.log")
//	m.AddPattern("/build/")
//
//	if m.Match("error.log", false) {
//	    // path is ignored
//	}
//
// For nested gitignore files:
//
//	m.AddFromFile("/path/to/project/.gitignore", "")
//	m.AddFromFile("/path/to/project/src/.gitignore", "src")
package gitignore
