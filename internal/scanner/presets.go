package scanner

// presetPatterns holds the built-in ignore lists for IgnorePreset values.
// Patterns use gitignore wildmatch syntax and are layered on top of a
// small set always-applied directories that never carry indexable content.
var presetPatterns = map[IgnorePreset][]string{
	PresetGo: {
		"vendor/",
		"*.pb.go",
		"*_string.go",
	},
	PresetNode: {
		"node_modules/",
		"dist/",
		"build/",
		"*.min.js",
		"package-lock.json",
		"pnpm-lock.yaml",
		"yarn.lock",
	},
	PresetPython: {
		"__pycache__/",
		"*.pyc",
		".venv/",
		"venv/",
		"*.egg-info/",
	},
	PresetRust: {
		"target/",
		"Cargo.lock",
	},
}

// alwaysIgnoredDirs are excluded regardless of preset or explicit config,
// since they never hold source content worth embedding.
var alwaysIgnoredDirs = []string{
	".git/",
	".gundog/",
}

func presetMatcher(preset IgnorePreset) *patternMatcher {
	m := newPatternMatcher(alwaysIgnoredDirs)
	if patterns, ok := presetPatterns[preset]; ok {
		m.add(patterns)
	}
	return m
}
