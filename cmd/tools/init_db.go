package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/eavcache/factory"
	"github.com/lychee-technology/eavcache/internal"
)

type initDBOptions struct {
	configPath string
	importFile string
}

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: eav-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := initDBOptions{}
	flags.StringVar(&opts.configPath, "config", getenvDefault("EAVCACHE_CONFIG", ""), "config file (YAML or JSON)")
	flags.StringVar(&opts.importFile, "import", getenvDefault("EAVCACHE_IMPORT", ""), "metadata document to import after creating the tables (optional)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return initDatabase(opts)
}

func initDatabase(opts initDBOptions) error {
	ctx := context.Background()

	config, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	var document []byte
	if opts.importFile != "" {
		if document, err = os.ReadFile(opts.importFile); err != nil {
			return fmt.Errorf("read metadata document(%s): %w", opts.importFile, err)
		}
	}

	pool, err := factory.NewPool(ctx, config.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tables := config.Database.TableNames
	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		if err := internal.CreateMetadataTables(ctx, tx, tables); err != nil {
			return err
		}
		if document == nil {
			return nil
		}
		return internal.ImportMetadataDocument(ctx, tx, tables, document)
	}); err != nil {
		return err
	}

	fmt.Println("Database initialized successfully.")
	if document != nil {
		fmt.Println("Run `eav-tools invalidate` so running processes pick up the imported metadata.")
	}
	return nil
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
