// Command cachegate runs the caching gateway: an HTTP front for the FRENDE
// API that serves reads through the two-tier cache, applies mutation-driven
// invalidation, warms hot endpoints, and exposes analytics and debug
// endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/coder123855/frende-cache/pkg/analytics"
	"github.com/coder123855/frende-cache/pkg/client"
	"github.com/coder123855/frende-cache/pkg/invalidation"
	"github.com/coder123855/frende-cache/pkg/logging"
	"github.com/coder123855/frende-cache/pkg/ratelimit"
	"github.com/coder123855/frende-cache/pkg/storage"
	"github.com/coder123855/frende-cache/pkg/store"
	"github.com/coder123855/frende-cache/pkg/strategy"
	"github.com/coder123855/frende-cache/pkg/warming"
)

func main() {
	// Configuration from environment
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	port := getEnv("PORT", "8080")
	upstreamURL := getEnv("UPSTREAM_URL", "https://api.frende.app")
	apiToken := os.Getenv("API_TOKEN")
	logLevel := getEnv("LOG_LEVEL", "info")
	maxEntries := getEnvInt("CACHE_MAX_ENTRIES", store.DefaultMaxEntries)
	maxBytes := int64(getEnvInt("CACHE_MAX_BYTES", int(store.DefaultMaxBytes)))
	warmOnStart := getEnv("WARM_ON_START", "true") == "true"

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Pretty: getEnv("LOG_PRETTY", "false") == "true",
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable tier: Redis, with an in-process fallback when it is
	// unreachable so the gateway still serves with the memory tier plus a
	// local durable stand-in.
	durable := connectDurable(ctx, redisURL, logger)

	// The collector reports the store's memory usage and the store publishes
	// samples to the collector; the closure breaks the construction cycle.
	var cacheStore *store.Store
	collector := analytics.NewCollector(analytics.CollectorConfig{
		Logger: logger,
		MemoryUsage: func() (used, capacity int64) {
			if cacheStore == nil {
				return 0, 0
			}
			return cacheStore.MemoryUsage()
		},
	})

	cacheStore, err := store.New(store.Config{
		Durable:    durable,
		MaxEntries: maxEntries,
		MaxBytes:   maxBytes,
		Logger:     logger,
		Recorder:   collector,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create cache store")
	}

	registry := strategy.NewRegistry(strategy.FrendeRules())

	invalidator := invalidation.New(invalidation.Config{
		Store:    cacheStore,
		Registry: registry,
		Logger:   logger,
	})
	defer invalidator.Close(context.Background())

	// The budget gate shares state through the durable tier, so multiple
	// gateway instances behind the same Redis respect one upstream budget.
	gate := ratelimit.NewGate(durable, nil, logger)

	fetcher, err := client.NewHTTPFetcher(client.HTTPConfig{
		BaseURL: upstreamURL,
		Token:   staticToken(apiToken),
		Limiter: gate,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create fetcher")
	}

	alertEngine := analytics.NewAlertEngine(collector, analytics.DefaultThresholds(), nil, logger)
	advisor := analytics.NewAdvisor(collector, analytics.DefaultThresholds())
	alertEngine.AttachAdvisor(advisor)

	access, err := client.New(client.Config{
		Store:       cacheStore,
		Registry:    registry,
		Invalidator: invalidator,
		Fetcher:     fetcher,
		Collector:   collector,
		Alerts:      alertEngine,
		Advisor:     advisor,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create data access layer")
	}

	warmer := warming.New(warming.Config{
		Cache:    cacheStore,
		Registry: registry,
		Fetcher:  fetcher,
		Logger:   logger,
	})
	if warmOnStart {
		warmer.EnqueueDefaults()
	}
	warmer.Start(ctx)
	defer warmer.Stop()

	collector.StartRetentionSweep(ctx)
	alertEngine.Start(ctx)
	cacheStore.StartDurableCleanup(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(durable))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/", apiHandler(access))
	mux.HandleFunc("/debug/cache/clear", clearHandler(access))
	mux.HandleFunc("/debug/cache/export", exportHandler(access))
	mux.HandleFunc("/debug/cache/stats", statsHandler(cacheStore, collector))
	mux.HandleFunc("/debug/cache/verbose", verboseHandler(access))

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("upstream", upstreamURL).Msg("Starting cache gateway")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	access.Wait()
}

// connectDurable returns a Redis-backed durable tier, or an in-process one
// when Redis is unreachable.
func connectDurable(ctx context.Context, redisURL string, logger zerolog.Logger) storage.Durable {
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", redisURL).
			Msg("Redis unreachable, using in-process durable tier")
		return storage.NewMemStore()
	}

	logger.Info().Str("addr", redisURL).Msg("Connected to Redis")
	return storage.NewRedisStore(redisClient)
}

// staticToken adapts a fixed token string to a TokenSource. An empty token
// yields unauthenticated requests.
func staticToken(token string) client.TokenSource {
	if token == "" {
		return nil
	}
	return func() (string, error) { return token, nil }
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports readiness of the durable tier.
func readyHandler(durable storage.Durable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		// A probe read exercises the durable tier without side effects.
		if _, err := durable.Get(ctx, "frende:readyz"); err != nil && !errors.Is(err, storage.ErrNotFound) {
			http.Error(w, fmt.Sprintf("durable tier unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// apiHandler proxies API traffic through the cached data access layer.
func apiHandler(access *client.Access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		var (
			body []byte
			err  error
		)

		switch r.Method {
		case http.MethodGet:
			params := map[string]string{}
			for key, values := range r.URL.Query() {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}
			body, err = access.Get(ctx, r.URL.Path, client.GetOptions{Params: params})
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			var payload []byte
			payload, err = readBody(r)
			if err == nil {
				switch r.Method {
				case http.MethodPost:
					body, err = access.Post(ctx, r.URL.Path, payload)
				case http.MethodPut:
					body, err = access.Put(ctx, r.URL.Path, payload)
				default:
					body, err = access.Patch(ctx, r.URL.Path, payload)
				}
			}
		case http.MethodDelete:
			body, err = access.Delete(ctx, r.URL.Path)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err != nil {
			writeAPIError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write(body)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 1<<20))
}

// writeAPIError maps data access errors to proxy responses.
func writeAPIError(w http.ResponseWriter, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		http.Error(w, apiErr.Message, apiErr.StatusCode)
		return
	}
	http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
}

// clearHandler removes cache entries by pattern, type, or entirely.
// POST /debug/cache/clear?pattern=/api/tasks
// POST /debug/cache/clear?type=matches
// POST /debug/cache/clear
func clearHandler(access *client.Access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var (
			removed int
			err     error
		)
		switch {
		case r.URL.Query().Get("pattern") != "":
			removed, err = access.ClearByPattern(r.Context(), r.URL.Query().Get("pattern"))
		case r.URL.Query().Get("type") != "":
			removed, err = access.ClearByType(r.Context(), r.URL.Query().Get("type"))
		default:
			removed, err = access.ClearAll(r.Context())
		}

		if err != nil {
			http.Error(w, fmt.Sprintf("clear failed: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"removed": %d}`, removed)
	}
}

// exportHandler serves the full analytics snapshot.
func exportHandler(access *client.Access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := access.ExportAnalytics()
		if err != nil {
			http.Error(w, fmt.Sprintf("export failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

// statsHandler serves current cache statistics and the performance summary.
func statsHandler(cacheStore *store.Store, collector *analytics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := cacheStore.GetStats()
		summary := collector.PerformanceSummary()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"entries": %d, "memory_bytes": %d, "hit_rate": %.4f, "efficiency_grade": %q}`,
			stats.Entries, stats.MemoryBytes, summary.HitRate, summary.EfficiencyGrade)
	}
}

// verboseHandler toggles per-request debug logging.
// POST /debug/cache/verbose?enabled=true
func verboseHandler(access *client.Access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		enabled := strings.EqualFold(r.URL.Query().Get("enabled"), "true")
		access.SetVerbose(enabled)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"verbose": %t}`, enabled)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
