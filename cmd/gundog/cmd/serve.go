package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gundog/gundog/internal/config"
	"github.com/gundog/gundog/internal/daemon"
	"github.com/gundog/gundog/internal/ingest"
	"github.com/gundog/gundog/internal/query"
	"github.com/gundog/gundog/internal/registry"
	"github.com/gundog/gundog/internal/scanner"
	"github.com/gundog/gundog/internal/watch"
)

func newServeCmd() *cobra.Command {
	var (
		host      string
		port      int
		cacheSize int
		noWatch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gundog daemon (WebSocket query server)",
		Long: `Run the long-lived daemon: loads indexes from the registry on
demand, serves the line-delimited-JSON-over-WebSocket query protocol,
and (unless --no-watch) runs live reindexing for any registered index
with a source configured watch: true.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, host, port, cacheSize, noWatch)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Override daemon.host from daemon.yaml")
	cmd.Flags().IntVar(&port, "port", 0, "Override daemon.port from daemon.yaml")
	cmd.Flags().IntVar(&cacheSize, "cache-size", 0, "Loaded-index LRU cache size (default 8)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Disable fsnotify live reindexing")

	return cmd
}

func runServe(cmd *cobra.Command, host string, port, cacheSize int, noWatch bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemonCfg, err := config.LoadDaemon(config.DefaultDaemonConfigPath())
	if err != nil {
		return fmt.Errorf("load daemon config: %w", err)
	}
	if host != "" {
		daemonCfg.Host = host
	}
	if port != 0 {
		daemonCfg.Port = port
	}

	reg, err := openRegistry()
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}

	// daemon.Server currently serves every loaded index through one
	// Engine/embedder pair (spec §4.11 does not call for per-connection
	// model switching); every registered index is expected to share an
	// embedding.model, matching the default index's when one is set.
	engine := query.New(buildEmbedder(defaultProjectConfig(reg)))

	srv, err := daemon.NewServer(reg, engine, cacheSize, daemonCfg.CORS.AllowedOrigins)
	if err != nil {
		return fmt.Errorf("create daemon server: %w", err)
	}

	if !noWatch {
		stopWatchers := startWatchers(ctx, reg)
		defer stopWatchers()
	}

	go srv.RunStatusBroadcaster(ctx)

	addr := fmt.Sprintf("%s:%d", daemonCfg.Host, daemonCfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("daemon: listening", slog.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// startWatchers opens every registered index with at least one
// watch:true source and runs its watch.Watcher until ctx is canceled.
// The returned function blocks until every watcher has stopped and its
// index has been closed.
func startWatchers(ctx context.Context, reg *registry.Registry) func() {
	var wg sync.WaitGroup

	for _, info := range reg.List() {
		ix, err := openIndexAt(info.Path)
		if err != nil {
			slog.Warn("watch: failed to open index", slog.String("index", info.Name), slog.Any("error", err))
			continue
		}

		watched := false
		for _, src := range ix.Config.Sources {
			if src.Watch {
				watched = true
				break
			}
		}
		if !watched {
			_ = ix.Close()
			continue
		}

		builder := ingest.New(scanner.New(), buildEmbedder(ix.Config), gitResolvers(ix.Config.Sources))
		w := watch.New(builder, ix)

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer ix.Close()
			if err := w.Run(ctx); err != nil {
				slog.Warn("watch: stopped with error", slog.String("index", name), slog.Any("error", err))
			}
		}(info.Name)
	}

	return wg.Wait
}
