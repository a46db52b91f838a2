package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tetrisduel/internal/config"
	"tetrisduel/internal/game"
	"tetrisduel/internal/identity"
	"tetrisduel/internal/logging"
	"tetrisduel/internal/server"
	"tetrisduel/internal/session"
	"tetrisduel/internal/storage"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Debug = cfg.Debug || *debug

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer store.Close()

	var scores storage.ScoreStore = store
	if cfg.ScoresDSN != "" {
		pg, err := storage.OpenPostgres(cfg.ScoresDSN)
		if err != nil {
			log.Fatalf("open scores database: %v", err)
		}
		defer pg.Close()
		scores = pg
		log.Printf("recording scores in postgres")
	}

	var verifier identity.Verifier = identity.GuestOnly{}
	if cfg.JWTSecret != "" {
		verifier = identity.NewJWTVerifier(cfg.JWTSecret)
	} else {
		log.Printf("JWT_SECRET not set, accepting guests only")
	}

	mgr := session.NewManager(store)
	defer mgr.Close()
	if err := mgr.Restore(); err != nil {
		log.Printf("warning: restore sessions: %v", err)
	}

	hub := server.NewHub()
	coord := game.NewCoordinator(mgr, hub, game.Options{
		MatchDuration: cfg.MatchDuration,
		Scores:        scores,
	})
	mgr.OnRemove(func(code string) {
		coord.Forget(code)
		hub.Forget(code)
	})

	httpSrv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.New(mgr, coord, hub, verifier, scores),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		mgr.CleanupLoop(ctx, cfg.CleanupInterval, cfg.SessionMaxAge)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}
	coord.Wait()
	log.Printf("shut down")
}
