package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/eavcache"
	"github.com/lychee-technology/eavcache/factory"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init-db":
		if err := runInitDB(os.Args[2:]); err != nil {
			sugar.Fatalf("init-db: %v", err)
		}
	case "inspect":
		if err := runInspect(os.Args[2:]); err != nil {
			sugar.Fatalf("inspect: %v", err)
		}
	case "invalidate":
		if err := runInvalidate(os.Args[2:]); err != nil {
			sugar.Fatalf("invalidate: %v", err)
		}
	default:
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: eav-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  init-db      Create the EAV metadata tables and optionally import a metadata document")
	logger.Info("  inspect      Print entity types, attributes and attribute sets as the metadata cache resolves them")
	logger.Info("  invalidate   Clean the EAV entries of the secondary cache")
}

// loadConfig reads path (optional) plus EAVCACHE_* overrides.
func loadConfig(path string) (*eavcache.Config, error) {
	config, err := eavcache.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return config, nil
}

// openRuntime connects to Postgres when the config needs it and wires the cache runtime.
// The returned cleanup closes both.
func openRuntime(ctx context.Context, config *eavcache.Config) (*factory.Runtime, func(), error) {
	var pool *pgxpool.Pool
	if config.Source.Kind == eavcache.SourceKindPostgres {
		var err error
		pool, err = factory.NewPool(ctx, config.Database)
		if err != nil {
			return nil, nil, err
		}
	}

	rt, err := factory.NewRuntime(ctx, config, pool, nil)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, nil, err
	}

	return rt, func() {
		if err := rt.Close(); err != nil {
			zap.S().Warnw("failed to close runtime", "error", err)
		}
		if pool != nil {
			pool.Close()
		}
	}, nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
