package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"toonarr/internal/api"
	"toonarr/internal/config"
	"toonarr/internal/controllers"
	"toonarr/internal/models"
	"toonarr/internal/scheduler"
	"toonarr/internal/services/toonstream"
	"toonarr/internal/utils"
)

func main() {
	root := &cobra.Command{
		Use:   "toonarr",
		Short: "Incremental episode ingestion for toonstream",
		Long: "Toonarr watches the toonstream homepage for newly published episodes,\n" +
			"backfills missing seasons and episodes, and serves the collected catalog\n" +
			"over a small HTTP API.",
		SilenceUsage: true,
	}

	root.AddCommand(newWatchCmd(), newInspectCmd(), newSaveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the polling daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch()
		},
	}
}

func newInspectCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "inspect [url]",
		Short: "Print what the extractor sees on a page",
		Long: "Without a URL, inspect fetches the homepage and prints the discovered\n" +
			"cards. An episode URL prints its resolved server list instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return runInspect(target, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "print every card instead of the first 10")
	return cmd
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <episode-url>",
		Short: "Reconcile a single episode URL and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(args[0])
		},
	}
}

func runWatch() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting Toonarr")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Initialize site client
	client, err := toonstream.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize site client: %w", err)
	}
	logger.WithField("proxies", len(cfg.Proxies)).Info("Site client initialized")

	// 5. Initialize reconciliation controller
	reconciler := controllers.NewReconcileController(db, client, cfg.BackfillCooldown, logger)
	logger.Info("Controllers initialized")

	// 6. Start the poller
	poller := scheduler.NewPoller(reconciler, cfg.PollInterval, logger)
	if err := poller.Start(); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}
	defer poller.Stop()

	// 7. Initialize HTTP server
	server := api.NewServer(cfg, db, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 8. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Toonarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Toonarr stopped")
	return nil
}

func runInspect(target string, all bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := utils.NewLogger(cfg.LogLevel)

	client, err := toonstream.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize site client: %w", err)
	}

	ctx := context.Background()

	if target == "" {
		target = client.BaseURL().String()
	}

	// An episode URL gets its servers resolved; anything else lists cards
	if toonstream.ParseEpisodeCode(target) != nil {
		html, err := client.FetchHTML(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", target, err)
		}
		embeds := client.ResolveEmbeds(ctx, toonstream.ExtractIframeEmbeds(html, client.BaseURL()))
		if len(embeds) == 0 {
			fmt.Println("No servers found")
			return nil
		}
		for _, embed := range embeds {
			option := "-"
			if embed.Option != nil {
				option = fmt.Sprintf("%d", *embed.Option)
			}
			fmt.Printf("option %s  %s\n", option, embed.URL)
		}
		return nil
	}

	html, err := client.FetchHTML(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	cards := toonstream.ExtractHomepageCards(html, client.BaseURL())
	if len(cards) == 0 {
		fmt.Println("No cards found")
		return nil
	}

	limit := len(cards)
	if !all && limit > 10 {
		limit = 10
	}
	for i, card := range cards[:limit] {
		fmt.Printf("%2d. %s\n    url: %s\n    context: %s\n    location: %s\n",
			i+1, card.Title, card.URL, card.Context, card.Location)
	}
	if limit < len(cards) {
		fmt.Printf("... and %d more (use --all)\n", len(cards)-limit)
	}
	return nil
}

func runSave(episodeURL string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := utils.NewLogger(cfg.LogLevel)

	if toonstream.ParseEpisodeCode(episodeURL) == nil {
		return fmt.Errorf("%s does not look like an episode URL", episodeURL)
	}

	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	client, err := toonstream.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize site client: %w", err)
	}

	reconciler := controllers.NewReconcileController(db, client, cfg.BackfillCooldown, logger)
	reconciler.HandleEpisodeCard(context.Background(), toonstream.Card{URL: episodeURL})
	return nil
}
