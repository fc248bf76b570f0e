package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "voidstrike.db", "path to the profile database")
	mapName := flag.String("map", "frontier", "map to host (frontier, nexus)")
	flag.Parse()

	store, err := OpenProfileStore(*dbPath)
	if err != nil {
		log.Fatalf("open profile store: %v", err)
	}
	defer store.Close()

	events := NewEventTracker(store)
	defer events.Stop()

	auth := NewAuth(store)
	world := NewWorld(DefaultMapConfig(*mapName), store, auth, events)
	hub := NewHub(world, auth)

	mux := SetupRoutes(hub)
	server := &http.Server{Addr: *addr, Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		world.Run()
		return nil
	})

	g.Go(func() error {
		go hub.Run()
		log.Printf("server starting on %s, map %q", *addr, *mapName)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Println("shutting down...")

		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		server.Shutdown(shutCtx)

		world.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
