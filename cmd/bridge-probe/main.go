// Command bridge-probe connects to a running Unity editor bridge,
// verifies the connection with a keepalive probe and issues a single
// command, printing the result as JSON. With METRICS_ADDR set it also
// exposes Prometheus metrics while running.
//
// Usage:
//
//	bridge-probe <command> ['{"param":"value"}']
//	bridge-probe ping
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/komastudios/unity-mcp/internal/config"
	"github.com/komastudios/unity-mcp/pkg/bridge"
	"github.com/komastudios/unity-mcp/pkg/cache"
	"github.com/komastudios/unity-mcp/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: bridge-probe <command> [params-json]")
		os.Exit(2)
	}
	commandName := os.Args[1]

	var params map[string]any
	if len(os.Args) > 2 {
		if err := json.Unmarshal([]byte(os.Args[2]), &params); err != nil {
			fmt.Fprintf(os.Stderr, "invalid params JSON: %v\n", err)
			os.Exit(2)
		}
	}

	if cfg.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				logger.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
	}

	registry := cache.NewRegistry(cache.Config{
		MaxBytes:             int64(cfg.CacheMaxMB) * 1024 * 1024,
		Expiration:           cfg.CacheExpiration,
		FilterCacheThreshold: 100 * 1024,
	})

	connector := bridge.NewConnector(bridge.Config{
		Host:           cfg.UnityHost,
		Port:           cfg.UnityPort,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		BufferSize:     cfg.BufferSize,
		TokenThreshold: cfg.TokenThreshold,
		BytesPerToken:  cfg.BytesPerToken,
		Cache:          registry.Get(cache.DefaultCacheName),
	})
	defer connector.Close()

	ctx := context.Background()
	conn, err := connector.Acquire(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Could not establish a verified bridge connection")
		os.Exit(1)
	}

	result, err := conn.Send(ctx, commandName, params)
	if err != nil {
		logger.Error().Err(err).Str("command", commandName).Msg("Command failed")
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error().Err(err).Msg("Could not encode result")
		os.Exit(1)
	}
	fmt.Println(string(out))
}
