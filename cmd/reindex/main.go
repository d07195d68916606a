// Command reindex rebuilds missing image rows from the JSON side-files on
// disk. Rows already in the index are left untouched.
package main

import (
	"flag"
	"fmt"
	"log"

	"agricam/internal/config"
	"agricam/internal/logger"
	"agricam/internal/repository/sqlite"
	"agricam/internal/service/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	imagesDir := flag.String("images", cfg.ImageDirectory, "Directory containing the dated image folders")
	dbPath := flag.String("db", cfg.DBPath, "Database path")
	flag.Parse()

	cfg.ImageDirectory = *imagesDir
	cfg.DBPath = *dbPath

	fmt.Printf("Reindexing images from %s into %s\n", cfg.ImageDirectory, cfg.DBPath)

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	appLog, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLog.Sync()

	images := sqlite.NewImageRepository(db)
	store := storage.NewFileStore(cfg, appLog.Named("reindex"), images)

	scanned, inserted, err := store.Reindex()
	if err != nil {
		log.Fatalf("Failed to reindex: %v", err)
	}

	fmt.Printf("Scanned %d side-files, inserted %d missing rows\n", scanned, inserted)

	total, err := images.Count()
	if err == nil {
		fmt.Printf("Total indexed images: %d\n", total)
	}
}
