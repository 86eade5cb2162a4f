package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"slidecast/accounts"
	"slidecast/batch"
	"slidecast/config"
	"slidecast/pipeline"
	"slidecast/types"
	"slidecast/upload"
)

func main() {
	// Load .env for local runs; secrets come from the environment otherwise.
	_ = godotenv.Load()

	var (
		configPath   = flag.String("config", "config.yaml", "path to the YAML config file")
		batchPath    = flag.String("batch", "", "CSV batch table; enables batch mode")
		accountsPath = flag.String("accounts", "accounts.json", "JSON file mapping account names to refresh tokens")
		presetPath   = flag.String("preset", "", "generation preset (single-item mode)")
		workflowPath = flag.String("workflow", "", "image backend workflow (single-item mode)")
		title        = flag.String("title", "", "video title override (single-item mode)")
		account      = flag.String("account", "", "publish to this account after generation (single-item mode)")
		category     = flag.String("category", "22", "video category id")
		schedule     = flag.String("schedule", "", "publish time, RFC3339 or 'YYYY-MM-DD HH:MM' local")
	)
	flag.Parse()

	cfg := loadConfig(*configPath)

	if *batchPath != "" {
		os.Exit(runBatch(cfg, *batchPath, *accountsPath))
	}
	if *presetPath == "" || *workflowPath == "" {
		log.Fatal("either -batch, or both -preset and -workflow are required")
	}
	os.Exit(runSingle(cfg, *presetPath, *workflowPath, *title, *account, *accountsPath, *category, *schedule))
}

func loadConfig(path string) *config.Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("[main] No config file at %s, using defaults", path)
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// loadAccounts is best-effort: without an accounts file the tool still
// generates videos, it just cannot publish them.
func loadAccounts(path string) *accounts.Manager {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("[main] No accounts file at %s, publishing disabled", path)
		return nil
	}
	mgr, err := accounts.Load(path)
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}
	return mgr
}

func cancelOnInterrupt(cancel func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("[main] 🛑 Interrupt received, cancelling...")
		cancel()
	}()
}

func runBatch(cfg *config.Config, batchPath, accountsPath string) int {
	items, err := batch.LoadItems(batchPath)
	if err != nil {
		log.Fatalf("Failed to load batch table: %v", err)
	}
	log.Printf("[main] 🎬 Starting batch run: %d item(s)", len(items))

	ctx := context.Background()
	mgr := loadAccounts(accountsPath)

	runner := batch.New(cfg, items, types.EventFuncs{
		OnOperation: func(op string) { log.Printf("[main] %s", op) },
	})
	if mgr != nil {
		for _, item := range items {
			item.Credentials = mgr.Credentials(ctx, item.Account)
		}
	} else {
		runner.Publish = nil
	}
	cancelOnInterrupt(runner.Cancel)

	summary := runner.Run(ctx)
	if err := batch.SaveItems(batchPath, items); err != nil {
		log.Printf("[main] Failed to save batch results: %v", err)
	}

	if summary.State == types.RunCancelled || summary.Failed > 0 {
		return 1
	}
	return 0
}

func runSingle(cfg *config.Config, presetPath, workflowPath, title, account, accountsPath, category, schedule string) int {
	preset, err := config.LoadPreset(presetPath)
	if err != nil {
		log.Fatalf("Invalid preset: %v", err)
	}
	if _, err := config.LoadWorkflow(workflowPath); err != nil {
		log.Fatalf("Invalid workflow: %v", err)
	}
	if title == "" {
		title = preset.VideoTitle
	}

	req := types.GenerationRequest{
		APIKey:          preset.APIKey,
		VideoTitle:      strings.ReplaceAll(title, " ", "-"),
		ThumbnailPrompt: preset.ThumbnailPrompt,
		ImagesPrompt:    preset.ImagesPrompt,
		IntroPrompt:     preset.IntroPrompt,
		LoopingPrompt:   preset.LoopingPrompt,
		OutroPrompt:     preset.OutroPrompt,
		LoopLength:      preset.LoopLength,
		AudioWordLimit:  preset.AudioWordLimit,
		ImageCount:      preset.ImageCount,
		ImageWordLimit:  preset.ImageWordLimit,
		WorkflowPath:    workflowPath,
	}

	pl := pipeline.New(cfg, req, types.EventFuncs{
		OnOperation: func(op string) { log.Printf("[main] ▶ %s", op) },
		OnProgress:  func(p int) { log.Printf("[main] Progress: %d%%", p) },
	})
	cancelOnInterrupt(pl.Cancel)

	ctx := context.Background()
	res, err := pl.Run(ctx)
	if err != nil {
		return 1
	}
	log.Printf("[main] ✅ Video ready: %s", res.VideoPath)

	if account == "" {
		return 0
	}
	mgr := loadAccounts(accountsPath)
	if mgr == nil {
		log.Printf("[main] Account %q requested but no accounts file, skipping upload", account)
		return 1
	}
	client := mgr.Credentials(ctx, account)
	if client == nil {
		log.Printf("[main] Unknown account %q, skipping upload", account)
		return 1
	}

	url, _, err := upload.New(cfg).Upload(ctx, client, upload.Input{
		VideoPath:     res.VideoPath,
		ThumbnailPath: res.ThumbnailPath,
		Title:         title,
		Description:   res.Description + "\n\n" + preset.Disclaimer,
		CategoryID:    category,
		Schedule:      schedule,
	}, func(p int) { log.Printf("[main] Upload: %d%%", p) })
	if err != nil {
		log.Printf("[main] ❌ Upload failed: %v", err)
		return 1
	}
	log.Printf("[main] ✅ Published: %s", url)
	return 0
}
