package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
	"github.com/vinccirom/taskforce-platform-sub001/middleware"
	mktapi "github.com/vinccirom/taskforce-platform-sub001/middleware/marketplace"
	"github.com/vinccirom/taskforce-platform-sub001/services"
	"github.com/vinccirom/taskforce-platform-sub001/storage/auth"
	mktstore "github.com/vinccirom/taskforce-platform-sub001/storage/marketplace"
)

type config struct {
	Port               string
	StoreDriver        string
	PGDSN              string
	Seed               bool
	AdminAPIKey        string
	OpenAuth           bool
	DisputeWindow      time.Duration
	CancellationFeeBps int
	PlatformWallet     string
	PaymentChain       string
	ChallengeTTL       time.Duration
	RequestTimeout     time.Duration
}

func loadConfig() config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	windowHours := 48
	if raw := os.Getenv("MKT_DISPUTE_WINDOW_HOURS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			windowHours = v
		}
	}

	feeBps := 500
	if raw := os.Getenv("MKT_CANCELLATION_FEE_BPS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			feeBps = v
		}
	}

	challengeTTL := 30 * time.Second
	if raw := os.Getenv("MKT_CHALLENGE_TTL_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			challengeTTL = time.Duration(v) * time.Second
		}
	}

	storeDriver := os.Getenv("MKT_STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = "memory"
	}

	seed := true
	if raw := os.Getenv("MKT_SEED_FIXTURES"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			seed = v
		}
	}

	openAuth := false
	if raw := os.Getenv("MKT_OPEN_AUTH"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			openAuth = v
		}
	}

	return config{
		Port:               port,
		StoreDriver:        storeDriver,
		PGDSN:              os.Getenv("MKT_PG_DSN"),
		Seed:               seed,
		AdminAPIKey:        os.Getenv("MKT_ADMIN_API_KEY"),
		OpenAuth:           openAuth,
		DisputeWindow:      time.Duration(windowHours) * time.Hour,
		CancellationFeeBps: feeBps,
		PlatformWallet:     envDefault("MKT_PLATFORM_WALLET", "platform-treasury"),
		PaymentChain:       envDefault("MKT_PAYMENT_CHAIN", "base"),
		ChallengeTTL:       challengeTTL,
		RequestTimeout:     30 * time.Second,
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
			log.Fatal("MKT_PG_DSN required when MKT_STORE_DRIVER=postgres")
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
	notifier := services.NewLogNotifier("marketplace_notifier")

	tasks := marketplace.NewTaskService(ledger, escrow, notifier, cfg.CancellationFeeBps)
	allocator := marketplace.NewSlotAllocator(ledger, notifier)
	review := marketplace.NewReviewOrchestrator(ledger, escrow, notifier, cfg.PlatformWallet)
	disputes := marketplace.NewDisputeAdjudicator(ledger, services.NewHeuristicJuror(), review, notifier, cfg.DisputeWindow)

	var apiKeys auth.APIKeyValidator
	if !cfg.OpenAuth {
		switch cfg.StoreDriver {
		case "postgres":
			keyStore, err := auth.NewPGAPIKeyStore(ctx, cfg.PGDSN)
			if err != nil {
				log.Fatalf("failed to init api key store: %v", err)
			}
			keyStore.Seed(cfg.AdminAPIKey, "admin", marketplace.RoleAdmin, "env")
			apiKeys = keyStore
		default:
			keyStore := auth.NewAPIKeyStore()
			keyStore.Seed(cfg.AdminAPIKey, "admin", marketplace.RoleAdmin, "env")
			apiKeys = keyStore
		}
	}

	challenges := auth.NewChallengeStore(cfg.ChallengeTTL)

	srv := mktapi.NewServer(ledger, tasks, allocator, review, disputes, apiKeys, challenges)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	handler := middleware.Recovery(
		middleware.Logging(
			middleware.Metrics(
				middleware.CORS(
					middleware.SecurityHeaders(
						middleware.Timeout(cfg.RequestTimeout)(mux))))))

	log.Printf("Taskforce marketplace server starting on :%s (driver=%s)", cfg.Port, cfg.StoreDriver)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}
