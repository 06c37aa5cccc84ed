package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/lychee-technology/eavcache"
)

func runInvalidate(args []string) error {
	flags := flag.NewFlagSet("invalidate", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: eav-tools invalidate [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	configPath := flags.String("config", getenvDefault("EAVCACHE_CONFIG", ""), "config file (YAML or JSON)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx := context.Background()
	config, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	rt, cleanup, err := openRuntime(ctx, config)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := rt.Invalidator().CleanEAVCache(ctx); err != nil {
		return err
	}
	fmt.Printf("Invalidated secondary cache entries tagged %s (backend: %s).\n", eavcache.AttributeCacheTag, config.Cache.Backend)
	return nil
}
