package cmd

import (
	"log/slog"
	"path/filepath"

	"github.com/gundog/gundog/internal/gitinfo"
	"github.com/gundog/gundog/internal/scanner"
)

// gitResolvers opens a gitinfo.Resolver for every configured source,
// skipping sources that are not inside a git repository.
func gitResolvers(sources []scanner.Source) map[string]*gitinfo.Resolver {
	out := make(map[string]*gitinfo.Resolver, len(sources))
	for _, src := range sources {
		abs, err := filepath.Abs(src.Path)
		if err != nil {
			continue
		}
		resolver, err := gitinfo.Open(abs)
		if err != nil {
			slog.Debug("gitinfo: failed to open repository", slog.String("path", abs), slog.Any("error", err))
			continue
		}
		if resolver != nil {
			out[abs] = resolver
		}
	}
	return out
}
