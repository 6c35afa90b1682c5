package main

import (
	"context"
	_ "embed"
	"flag"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"sharegate/pkg/auth"
	"sharegate/pkg/cache"
	"sharegate/pkg/catalog"
	"sharegate/pkg/fetch"
	"sharegate/pkg/link"
	"sharegate/pkg/log"
	"sharegate/pkg/server"
	"sharegate/pkg/session"
	"sharegate/pkg/storage"
)

const (
	defaultRetryMax     = 3
	defaultRetryWaitMax = 30 * time.Second
	defaultFetchTimeout = 5 * time.Minute
	webhookTimeout      = 15 * time.Second
)

//go:embed VERSION
var Version string

func main() {
	// Initialize logger first
	_ = log.Logger

	dbPath := flag.String("db", "sharegate.db", "SQLite database path")
	cacheDir := flag.String("cache-dir", "build/cache", "Cache directory path")
	cacheMax := flag.String("cache-max", "1GiB", "Cache size ceiling (e.g. 512MiB, 2GiB)")
	cacheTTL := flag.Duration("cache-ttl", 0, "Per-entry cache expiry (0 = never)")
	cleanupInterval := flag.Duration("cleanup-interval", 10*time.Minute, "Expired cache entry sweep interval (0 = disabled)")
	addr := flag.String("addr", ":8080", "Server listen address")
	baseURL := flag.String("base-url", "http://localhost:8080", "Public base URL for share links")
	origin := flag.String("origin", "", "Origin store base URL (required)")
	directLimit := flag.String("direct-limit", "20MiB", "Size ceiling for the direct retrieval method")
	reqRate := flag.Float64("rate", 20, "Per-IP request rate limit (req/s, 0 = disabled)")
	burst := flag.Int("burst", 40, "Per-IP request burst")
	retryMax := flag.Int("retry-max", defaultRetryMax, "Maximum number of origin retries")
	retryWaitMin := flag.Duration("retry-wait-min", 1*time.Second, "Minimum wait time between retries")
	retryWaitMax := flag.Duration("retry-wait-max", defaultRetryWaitMax, "Maximum wait time between retries")
	fetchTimeout := flag.Duration("fetch-timeout", defaultFetchTimeout, "Origin fetch timeout")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		log.SetDebugMode()
		log.Debug().Msg("Debug mode enabled")
	}

	if *origin == "" {
		log.Fatal().Msg("Origin store URL must be specified with -origin flag")
	}
	if !strings.HasPrefix(*origin, "http://") && !strings.HasPrefix(*origin, "https://") {
		log.Fatal().Str("origin", *origin).Msg("Origin must start with http:// or https://")
	}

	cacheBytes, err := humanize.ParseBytes(*cacheMax)
	if err != nil {
		log.Fatal().Err(err).Str("cache-max", *cacheMax).Msg("Invalid cache size")
	}
	directBytes, err := humanize.ParseBytes(*directLimit)
	if err != nil {
		log.Fatal().Err(err).Str("direct-limit", *directLimit).Msg("Invalid direct limit")
	}

	db, err := storage.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open database")
	}
	defer func() { _ = db.Close() }()

	cacheMgr, err := cache.NewManager(db, *cacheDir, int64(cacheBytes), *cacheTTL)
	if err != nil {
		log.Fatal().Err(err).Str("cache_dir", *cacheDir).Msg("Failed to set up cache")
	}
	if *cleanupInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cacheMgr.StartCleanup(ctx, *cleanupInterval)
	}

	client := fetch.NewRetryableClient(*retryMax, *retryWaitMin, *retryWaitMax)
	fetcher := fetch.NewOriginFetcher(*origin, client, *fetchTimeout)
	notifier := fetch.NewNotifier(client, webhookTimeout)

	srv := server.NewServer(server.Config{
		Version:           strings.TrimSpace(Version),
		PublicBaseURL:     strings.TrimSuffix(*baseURL, "/"),
		DirectLimit:       int64(directBytes),
		RequestsPerSecond: *reqRate,
		Burst:             *burst,
	},
		auth.NewManager(db),
		link.NewRegistry(db),
		session.NewTracker(db),
		cacheMgr,
		catalog.NewStore(db),
		fetcher,
		notifier,
	)

	log.Info().
		Str("origin", *origin).
		Str("cache_max", humanize.IBytes(cacheBytes)).
		Str("direct_limit", humanize.IBytes(directBytes)).
		Msg("Configured delivery service")

	if err := srv.Start(*addr); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
}
