package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaunagostinho/roadmap/internal/diag"
	"github.com/shaunagostinho/roadmap/internal/mapdb"
	"github.com/shaunagostinho/roadmap/internal/overlay"
	"github.com/shaunagostinho/roadmap/internal/plugin"
	"github.com/shaunagostinho/roadmap/internal/rmio"
	"github.com/shaunagostinho/roadmap/internal/server"
	"github.com/shaunagostinho/roadmap/web"
)

func main() {
	configPath := flag.String("config", "/etc/roadmap/config.yaml", "Path to config file")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] roadmapd starting")

	cfg := server.LoadConfig(*configPath)
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	// The service still runs without a map; built-in activations then fail.
	db, err := mapdb.Load(cfg.Database.Path)
	if err != nil {
		log.Printf("[main] %v (continuing with empty map)", err)
		db = mapdb.Empty()
	}

	registry := plugin.NewRegistry()
	registerProviders(registry, cfg.EnabledProviders())

	recorder := diag.New(cfg.Diagnostics)
	defer recorder.Close()

	dispatcher := plugin.NewDispatcher(db, registry, recorder)

	srv := server.New(cfg, registry, dispatcher, recorder, web.FS)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}

// registerProviders loads each overlay and registers it. A provider that
// cannot be loaded or does not fit is skipped.
func registerProviders(registry *plugin.Registry, providers []server.ProviderConfig) {
	for _, pc := range providers {
		p, err := loadOverlay(pc)
		if err != nil {
			log.Printf("[main] provider %s: %v", pc.Name, err)
			continue
		}
		if _, err := registry.Register(p); err != nil {
			if errors.Is(err, plugin.ErrNoCapacity) {
				log.Printf("[main] provider %s: registry full, running without it", pc.Name)
				continue
			}
			log.Printf("[main] provider %s: %v", pc.Name, err)
		}
	}
}

func loadOverlay(pc server.ProviderConfig) (*overlay.Provider, error) {
	h, err := rmio.Open(pc.Source)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	log.Printf("[main] reading provider %s from %s (%s)", pc.Name, h, h.Subsystem())
	return overlay.Read(h, pc.Name)
}
