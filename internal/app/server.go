package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	intrnl "fileportal/internal"
	"fileportal/internal/blobstore"
	"fileportal/internal/storage"
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr        string
	server      *http.Server
	store       *storage.Store
	stopSweeper context.CancelFunc
	done        chan struct{}
	err         error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer wires the registry, blob store, hub, identity store and sweeper,
// then starts serving in the background. Call Stop/Wait to manage its
// lifecycle. The sweeper runs until the server exits; rooms hold nothing that
// needs a graceful handoff.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	log := slog.Default()

	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDir()
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 100 * 1024 * 1024
	}
	if cfg.NotifyMode != NotifyPush && cfg.NotifyMode != NotifyPoll {
		return nil, fmt.Errorf("unknown notify mode %q", cfg.NotifyMode)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if pruned, err := store.PruneSessions(context.Background(), time.Now().Add(-cfg.SessionTTL)); err != nil {
		log.Warn("session prune failed", "error", err)
	} else if pruned > 0 {
		log.Info("pruned stale sessions", "count", pruned)
	}

	blobs, err := blobstore.NewDiskStore(cfg.UploadDir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	registry := intrnl.NewRegistry(cfg.RoomTTL)
	metrics := intrnl.NewMetrics()
	identity := intrnl.NewIdentityProvider(store, cfg.SessionTTL, log)

	var events intrnl.Broadcaster = intrnl.NopBroadcaster{}
	var hub *intrnl.Hub
	if cfg.NotifyMode == NotifyPush {
		hub = intrnl.NewHub(intrnl.NewPresenceTracker(), metrics, log)
		events = hub
	}

	server := intrnl.NewServer(intrnl.ServerParams{
		Registry:       registry,
		Blobs:          blobs,
		Events:         events,
		Hub:            hub,
		Identity:       identity,
		Metrics:        metrics,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            log,
	})

	mux := http.NewServeMux()
	registerHandlers(mux, server)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := intrnl.NewSweeper(registry, blobs, events, metrics, cfg.SweepInterval, log)
	go sweeper.Run(sweepCtx)

	handle := &ServerHandle{
		addr:        listener.Addr().String(),
		server:      httpServer,
		store:       store,
		stopSweeper: stopSweeper,
		done:        make(chan struct{}),
	}

	go func() {
		if ctx == nil {
			return
		}
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server shutdown error", "error", err)
		}
	}()

	go handle.serve(listener)

	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.stopSweeper()
	if err := h.store.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}
	h.err = err
}

func registerHandlers(mux *http.ServeMux, server *intrnl.Server) {
	mux.HandleFunc("POST /api/rooms", server.HandleCreateRoom)
	mux.HandleFunc("POST /api/rooms/{code}/join", server.HandleJoinRoom)
	mux.HandleFunc("GET /api/rooms/{code}", server.HandleRoom)
	mux.HandleFunc("DELETE /api/rooms/{code}", server.HandleDestroy)
	mux.HandleFunc("POST /api/rooms/{code}/files", server.HandleUpload)
	mux.HandleFunc("GET /api/rooms/{code}/files/{index}", server.HandleDownload)
	mux.HandleFunc("GET /api/rooms/{code}/timer", server.HandleTimer)
	mux.HandleFunc("GET /exists", server.HandleRoomExists)
	mux.HandleFunc("GET /watch", server.HandleWatch)
	mux.Handle("GET /metrics", server.MetricsHandler())
}
