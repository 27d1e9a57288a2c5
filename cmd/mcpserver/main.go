package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
	"github.com/vinccirom/taskforce-platform-sub001/mcp"
	"github.com/vinccirom/taskforce-platform-sub001/services"
	mktstore "github.com/vinccirom/taskforce-platform-sub001/storage/marketplace"
)

type config struct {
	StoreDriver        string
	PGDSN              string
	Seed               bool
	APIKey             string
	DisputeWindow      time.Duration
	CancellationFeeBps int
	PlatformWallet     string
	PaymentChain       string
}

func loadConfig() config {
	windowHours := 48
	if raw := os.Getenv("MCP_DISPUTE_WINDOW_HOURS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			windowHours = v
		}
	}

	feeBps := 500
	if raw := os.Getenv("MCP_CANCELLATION_FEE_BPS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			feeBps = v
		}
	}

	storeDriver := os.Getenv("MCP_STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = "memory"
	}

	seed := true
	if raw := os.Getenv("MCP_SEED_FIXTURES"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			seed = v
		}
	}

	return config{
		StoreDriver:        storeDriver,
		PGDSN:              os.Getenv("MCP_PG_DSN"),
		Seed:               seed,
		APIKey:             os.Getenv("MCP_API_KEY"),
		DisputeWindow:      time.Duration(windowHours) * time.Hour,
		CancellationFeeBps: feeBps,
		PlatformWallet:     envDefault("MCP_PLATFORM_WALLET", "platform-treasury"),
		PaymentChain:       envDefault("MCP_PAYMENT_CHAIN", "base"),
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	var ledger marketplace.Ledger
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("MCP_PG_DSN required when MCP_STORE_DRIVER=postgres")
		}
		store, err := mktstore.NewPGStore(ctx, cfg.PGDSN, cfg.Seed)
		if err != nil {
			log.Fatalf("failed to init store: %v", err)
		}
		ledger = store
	default:
		store := mktstore.NewMemoryStore()
		if cfg.Seed {
			if err := mktstore.SeedFixtures(ctx, store); err != nil {
				log.Printf("fixture seeding failed: %v", err)
			}
		}
		ledger = store
	}
	defer ledger.Close()

	escrow := services.NewSimulatedEscrow(cfg.PaymentChain)
	notifier := services.NewLogNotifier("mcp_notifier")

	allocator := marketplace.NewSlotAllocator(ledger, notifier)
	review := marketplace.NewReviewOrchestrator(ledger, escrow, notifier, cfg.PlatformWallet)
	disputes := marketplace.NewDisputeAdjudicator(ledger, services.NewHeuristicJuror(), review, notifier, cfg.DisputeWindow)

	mcpServer := mcp.NewMCPServer(ledger, allocator, review, disputes, cfg.APIKey)

	log.Printf("Taskforce MCP server starting (driver=%s)", cfg.StoreDriver)

	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
