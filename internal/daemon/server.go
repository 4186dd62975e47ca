// Package daemon implements the Daemon/RPC component (spec §4.11): a
// long-lived process hosting a loaded-index cache and serving the
// line-delimited-JSON-over-WebSocket query protocol of §6.3.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gundog/gundog/internal/config"
	gundogerrors "github.com/gundog/gundog/internal/errors"
	"github.com/gundog/gundog/internal/index"
	"github.com/gundog/gundog/internal/query"
	"github.com/gundog/gundog/internal/registry"
)

// DefaultLoadedIndexCacheSize bounds how many Index instances (each
// holding open store file handles) stay warm at once (spec §4.11: "on
// first use... retained; evictable by LRU when a bound is exceeded").
const DefaultLoadedIndexCacheSize = 8

// StatusInterval is how often the server pushes an unsolicited `status`
// frame to every connection (spec §4.11).
const StatusInterval = 15 * time.Second

// Server owns the registry, the loaded-index cache, and the set of live
// connections it periodically pushes status frames to.
type Server struct {
	Registry *registry.Registry
	Engine   *query.Engine

	started  time.Time
	upgrader websocket.Upgrader

	mu    sync.Mutex
	cache *lru.Cache[string, *index.Index]
	conns map[*connection]struct{}
}

// NewServer builds a Server. cacheSize <= 0 uses
// DefaultLoadedIndexCacheSize. allowedOrigins implements daemon.cors's
// allowed_origins check (spec §6.2); an empty list allows every origin,
// matching a same-machine CLI/browser UI default.
func NewServer(reg *registry.Registry, engine *query.Engine, cacheSize int, allowedOrigins []string) (*Server, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultLoadedIndexCacheSize
	}

	s := &Server{
		Registry: reg,
		Engine:   engine,
		started:  time.Now(),
		conns:    make(map[*connection]struct{}),
	}

	cache, err := lru.NewWithEvict(cacheSize, func(name string, ix *index.Index) {
		if err := ix.Close(); err != nil {
			slog.Warn("daemon: error closing evicted index", slog.String("index", name), slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create loaded-index cache: %w", err)
	}
	s.cache = cache

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return s, nil
}

// ServeHTTP upgrades the connection to a WebSocket and runs its session
// until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("daemon: upgrade failed", slog.Any("error", err))
		return
	}
	c := newConnection(s, ws)
	s.addConn(c)
	defer s.removeConn(c)
	c.run()
}

func (s *Server) addConn(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) removeConn(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// RunStatusBroadcaster pushes a `status` frame to every live connection
// every StatusInterval until ctx is canceled.
func (s *Server) RunStatusBroadcaster(ctx context.Context) {
	ticker := time.NewTicker(StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastStatus()
		}
	}
}

func (s *Server) broadcastStatus() {
	payload := StatusPayload{
		Type:       TypeStatus,
		UptimeSecs: time.Since(s.started).Seconds(),
		Indexes:    make(map[string]IndexStatus),
	}

	s.mu.Lock()
	for _, name := range s.cache.Keys() {
		ix, ok := s.cache.Peek(name)
		if !ok {
			continue
		}
		payload.Indexes[name] = IndexStatus{Loaded: true, Busy: ix.Busy()}
	}
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.sendJSON(payload)
	}
}

// loadIndex resolves name via the registry and returns its (possibly
// cached) open Index.
func (s *Server) loadIndex(name string) (*index.Index, error) {
	s.mu.Lock()
	if ix, ok := s.cache.Get(name); ok {
		s.mu.Unlock()
		return ix, nil
	}
	s.mu.Unlock()

	root, ok := s.Registry.Get(name)
	if !ok {
		return nil, gundogerrors.New(gundogerrors.CodeIndexNotFound, fmt.Sprintf("index %q is not registered", name))
	}

	cfg, err := config.LoadProject(filepath.Join(root, "config.yaml"))
	if err != nil {
		return nil, gundogerrors.Wrap(gundogerrors.CodeInternal, err)
	}
	ix, err := index.Open(root, cfg, s.Engine.Embedder.Dimension())
	if err != nil {
		return nil, gundogerrors.Wrap(gundogerrors.CodeInternal, err)
	}

	s.mu.Lock()
	s.cache.Add(name, ix)
	s.mu.Unlock()
	return ix, nil
}

// resolveIndexName applies the "index?" defaulting rule: an explicit
// name wins, otherwise the registry's default index is used.
func (s *Server) resolveIndexName(requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	name, ok := s.Registry.Default()
	if !ok {
		return "", gundogerrors.New(gundogerrors.CodeInvalidRequest, "no index specified and no default index is configured")
	}
	return name, nil
}
