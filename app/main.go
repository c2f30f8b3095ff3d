package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedsync/app/api"
	"feedsync/app/cfg"
	"feedsync/app/database"
	"feedsync/app/engine"
	"feedsync/app/feed"
	"feedsync/app/ids"
	"feedsync/app/seed"
	"feedsync/app/tasks"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	log.Printf("Starting Feed Sync server (version %s)...", appCfg.Version)

	log.Printf("Opening database at %s...", appCfg.DBPath)
	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Printf("Database ready (schema version %d, dirty: %t)", version, dirty)

	// Initialize repositories
	feedRepo := database.NewFeedRepository(db)
	entryRepo := database.NewEntryRepository(db)
	subRepo := database.NewSubscriptionRepository(db)
	userEntryRepo := database.NewUserEntryRepository(db)

	// Initialize core components
	parser := feed.NewParser()
	processor := engine.NewProcessor(db)
	tracker := engine.NewRedirectTracker(feedRepo)
	migrator := engine.NewMigrator(db)
	visibility := engine.NewVisibilityReconciler(feedRepo, entryRepo, subRepo, userEntryRepo)
	state := engine.NewStateReconciler(userEntryRepo)

	// Seed users and subscriptions
	if err := applySeeds(appCfg.SeedsDir, feedRepo, subRepo); err != nil {
		log.Fatal("Failed to apply seeds:", err)
	}

	// Initialize and start scheduler
	log.Printf("Starting background scheduler with %d workers...", appCfg.WorkerCount)
	httpClient := &http.Client{}
	scheduler := tasks.NewScheduler(feedRepo, subRepo, httpClient, parser, processor,
		tracker, migrator, visibility)
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize HTTP server
	apiHandler := api.NewHandler(feedRepo, entryRepo, subRepo, userEntryRepo, visibility, state)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on port %s", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Feed Sync server started successfully!")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	log.Println("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	} else {
		log.Println("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	log.Println("Feed Sync server shutdown complete")
}

// applySeeds registers feeds and subscriptions declared in the seeds
// directory. Registration is idempotent: known feeds and active
// subscriptions are left untouched.
func applySeeds(seedsDir string, feedRepo database.FeedRepository,
	subRepo database.SubscriptionRepository) error {
	loader := seed.NewLoader(seedsDir)
	seeds, err := loader.LoadAll()
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		return nil
	}

	ctx := context.Background()
	now := time.Now().UTC()
	registered := 0

	for _, s := range seeds {
		for _, url := range s.Feeds {
			f, err := feedRepo.GetFeedByURL(ctx, url)
			if err != nil {
				return fmt.Errorf("failed to look up feed %s: %w", url, err)
			}
			if f == nil {
				f = &database.Feed{
					ID:        ids.MustNew(),
					URL:       url,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := feedRepo.CreateFeed(ctx, f); err != nil {
					return fmt.Errorf("failed to register feed %s: %w", url, err)
				}
			}

			active, err := subRepo.GetActiveSubscription(ctx, s.User, f.ID)
			if err != nil {
				return fmt.Errorf("failed to look up subscription: %w", err)
			}
			if active != nil {
				continue
			}

			sub := &database.Subscription{
				ID:           ids.MustNew(),
				UserID:       s.User,
				FeedID:       f.ID,
				SubscribedAt: now,
			}
			if err := subRepo.CreateSubscription(ctx, sub); err != nil {
				return fmt.Errorf("failed to subscribe %s to %s: %w", s.User, url, err)
			}
			registered++
		}
	}

	log.Printf("Applied %d seed files, %d new subscriptions", len(seeds), registered)
	return nil
}
