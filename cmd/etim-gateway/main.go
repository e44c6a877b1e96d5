package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ziouzitsou/etim-mcp-server/internal/config"
	"github.com/ziouzitsou/etim-mcp-server/pkg/auth"
	"github.com/ziouzitsou/etim-mcp-server/pkg/cache"
	"github.com/ziouzitsou/etim-mcp-server/pkg/client"
	"github.com/ziouzitsou/etim-mcp-server/pkg/etim"
	"github.com/ziouzitsou/etim-mcp-server/pkg/governor"
	"github.com/ziouzitsou/etim-mcp-server/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Output: os.Stderr,
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr()).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", cfg.RedisAddr()).Msg("Connected to Redis")

	store := cache.NewRedisStore(redisClient)

	tokens, err := auth.NewManager(auth.Config{
		AuthURL:      cfg.AuthURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scope:        cfg.Scope,
		Store:        store,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create token manager")
	}

	pipeline, err := client.New(client.Config{
		BaseURL: cfg.APIURL,
		Store:   store,
		Tokens:  tokens,
		Governor: &governor.Governor{
			CollectionField:    governor.DefaultCollectionField,
			MaxCollectionBytes: cfg.MaxCollectionBytes,
		},
		TTL: cache.TTLPolicy{
			Search: cfg.SearchTTL,
			Detail: cfg.DetailTTL,
			Static: cfg.StaticTTL,
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create pipeline")
	}

	service := etim.NewService(pipeline, cfg.DefaultLanguage)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler(store, service))
	mux.HandleFunc("/api/classes/search", searchHandler(service))
	mux.HandleFunc("/api/classes/", classHandler(service))

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Msg("Starting ETIM gateway")

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(store *cache.RedisStore, service *etim.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		redisOK := store.Ping(ctx) == nil
		apiOK := service.TestConnection(ctx)

		status := "healthy"
		if !redisOK || !apiOK {
			status = "degraded"
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":   status,
			"redis":    connState(redisOK),
			"etim_api": connState(apiOK),
		})
	}
}

func searchHandler(service *etim.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		size, _ := strconv.Atoi(q.Get("size"))

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		env, err := service.SearchClasses(ctx, etim.SearchQuery{
			Text:     q.Get("q"),
			Language: q.Get("lang"),
			Size:     size,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeEnvelope(w, env)
	}
}

func classHandler(service *etim.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Path[len("/api/classes/"):]
		q := r.URL.Query()

		mode := governor.Mode(q.Get("mode"))
		page, _ := strconv.Atoi(q.Get("page"))
		perPage, _ := strconv.Atoi(q.Get("perPage"))

		detail, err := governor.NewDetailRequest(mode, page, perPage)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		env, err := service.ClassDetails(ctx, code, 0, q.Get("lang"), detail)
		if err != nil {
			writeError(w, err)
			return
		}
		writeEnvelope(w, env)
	}
}

func writeEnvelope(w http.ResponseWriter, env *governor.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if env.WasTruncated {
		w.Header().Set("X-Truncated", env.TruncationReason)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(env.Payload)
}

func writeError(w http.ResponseWriter, err error) {
	var authErr *auth.Error
	var upstreamErr *client.UpstreamError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &authErr):
		status = http.StatusBadGateway
	case errors.As(err, &upstreamErr):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func connState(ok bool) string {
	if ok {
		return "connected"
	}
	return "disconnected"
}
