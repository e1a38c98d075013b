package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/akumotech/wakasync/internal/config"
	"github.com/akumotech/wakasync/internal/db"
	"github.com/akumotech/wakasync/internal/oauthstate"
	"github.com/akumotech/wakasync/internal/server"
	"github.com/akumotech/wakasync/internal/syncjob"
	"github.com/akumotech/wakasync/internal/usage"
	"github.com/akumotech/wakasync/internal/vault"
	"github.com/akumotech/wakasync/internal/wakatime"
)

func main() {
	configPath := flag.String("config", "wakasync.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	database, err := db.InitDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	tokenVault, err := vault.New(cfg.Encryption.Secret, cfg.Encryption.Salt)
	if err != nil {
		log.Fatalf("Failed to initialize credential vault: %v", err)
	}

	states := oauthstate.NewMemoryStore()
	defer states.Close()

	creds := db.NewCredentials(database)
	tokens := wakatime.NewTokenClient(
		cfg.WakaTime.ClientID,
		cfg.WakaTime.ClientSecret,
		cfg.WakaTime.RedirectURL,
		cfg.WakaTime.Scopes,
		cfg.RequestTimeout(),
	)
	executor := wakatime.NewExecutor(creds, tokenVault, tokens, wakatime.APIBaseURL, cfg.RequestTimeout())
	summaries := usage.NewStore(database)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Nightly usage sync
	job := syncjob.New(creds, executor, summaries, cfg.Sync.Workers)
	syncjob.NewScheduler(job, cfg.Sync.Hour, cfg.Sync.Minute).Start(ctx)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", server.HealthzHandler())

	r.Route("/integrations/wakatime", func(r chi.Router) {
		r.Get("/authorize", server.AuthorizeHandler(states, tokens, creds))
		r.Get("/callback", server.CallbackHandler(states, tokens, tokenVault, creds))
		r.Get("/usage/today", server.UsageTodayHandler(executor, summaries))
		r.Get("/usage/range", server.UsageRangeHandler(executor))
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		<-ctx.Done()
		log.Println("🛑 Shutting down")
		srv.Shutdown(context.Background())
	}()

	log.Printf("🚀 wakasync listening on %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
