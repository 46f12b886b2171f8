package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/ArcaneAIAutomation/opspilot/pkg/config"
	"github.com/ArcaneAIAutomation/opspilot/pkg/runtime"
	"github.com/ArcaneAIAutomation/opspilot/pkg/storage"
)

var (
	fromEngine = flag.String("from", "", "Source storage engine (file, sqlite, database)")
	fromPath   = flag.String("from-path", "", "Source storage path")
	toEngine   = flag.String("to", "", "Destination storage engine (file, sqlite, database)")
	toPath     = flag.String("to-path", "", "Destination storage path")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("OpsPilot Storage Migration Tool")
	log.Println("===============================")

	if *fromEngine == "" || *toEngine == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *fromEngine == *toEngine && *fromPath == *toPath {
		log.Fatal("Source and destination are the same store")
	}

	src, err := runtime.OpenStore(config.StorageConfig{
		Engine:  *fromEngine,
		Options: config.StorageOptions{Path: *fromPath},
	})
	if err != nil {
		log.Fatalf("Failed to open source store: %v", err)
	}
	defer src.Close()

	dst, err := runtime.OpenStore(config.StorageConfig{
		Engine:  *toEngine,
		Options: config.StorageOptions{Path: *toPath},
	})
	if err != nil {
		log.Fatalf("Failed to open destination store: %v", err)
	}
	defer dst.Close()

	log.Printf("Source: %s (%s)", *fromEngine, *fromPath)
	log.Printf("Destination: %s (%s)", *toEngine, *toPath)
	log.Printf("Dry run: %v", *dryRun)

	if err := migrate(context.Background(), src, dst, *dryRun); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
	} else {
		log.Println("\n✓ Migration completed successfully!")
		log.Println("The source store was left untouched for rollback.")
	}
}

func migrate(ctx context.Context, src, dst storage.Store, dryRun bool) error {
	collections, err := src.Collections(ctx)
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		log.Println("✓ Source store is empty, nothing to migrate")
		return nil
	}

	total := 0
	for _, collection := range collections {
		n, err := src.Count(ctx, collection)
		if err != nil {
			return err
		}
		log.Printf("Found collection %q with %d keys", collection, n)
		total += n
	}

	if dryRun {
		log.Printf("\n[DRY RUN] Would copy %d keys across %d collections", total, len(collections))
		return nil
	}

	copied := 0
	for _, collection := range collections {
		entries, err := src.List(ctx, collection, storage.ListOptions{})
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := dst.Set(ctx, collection, entry.Key, entry.Value); err != nil {
				return err
			}
			copied++
			if copied%100 == 0 {
				log.Printf("  Copied %d/%d...", copied, total)
			}
		}
		log.Printf("✓ Copied collection %q (%d keys)", collection, len(entries))
	}

	log.Printf("✓ Copied %d/%d keys", copied, total)
	return nil
}
