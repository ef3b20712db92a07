package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"turnhub/api/internal/agent"
	"turnhub/api/internal/config"
	"turnhub/api/internal/orgclient"
	"turnhub/api/internal/snapshot"
	"turnhub/api/internal/syncer"
)

// pushGate tracks whether a push is in flight so shutdown can wait for
// it to land instead of dropping buffered changes.
type pushGate struct {
	mu   sync.Mutex
	idle chan struct{} // closed while no push is pending
}

func newPushGate() *pushGate {
	g := &pushGate{idle: make(chan struct{})}
	close(g.idle)
	return g
}

func (g *pushGate) SetPendingPush(pending bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pending {
		select {
		case <-g.idle:
			g.idle = make(chan struct{})
		default:
		}
		return
	}
	select {
	case <-g.idle:
	default:
		close(g.idle)
	}
}

func (g *pushGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	idle := g.idle
	g.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func main() {
	cfg := config.LoadAgent()

	cache, err := snapshot.Open(cfg.SnapshotPath)
	if err != nil {
		log.Fatalf("snapshot cache failed: %v", err)
	}
	defer cache.Close()

	client := orgclient.New(cfg.ServerURL, cfg.PushTimeout)
	guard := newPushGate()
	orchestrator := syncer.New(cache, client, syncer.Options{
		Debounce:    cfg.PushDebounce,
		PushTimeout: cfg.PushTimeout,
		Guard:       guard,
	})

	state := orchestrator.Hydrate(context.Background())
	log.Printf(`{"event":"hydrated","state":"%s","org_id":"%s"}`, state, orchestrator.OrgID())

	httpServer := agent.NewHTTPServer(orchestrator, client)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Turnhub agent listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("agent server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	// Flush any debounced changes, then wait for the push to land. The
	// wait is bounded so a dead server cannot hang shutdown; the change
	// is still in the snapshot cache for the next start either way.
	orchestrator.Flush()
	waitCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.PushTimeout)
	defer cancel()
	if err := guard.Wait(waitCtx); err != nil {
		log.Printf(`{"event":"shutdown_push_abandoned","error":"%s"}`, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
