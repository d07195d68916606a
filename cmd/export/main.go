// Command export writes a CSV summary and a text report of recent captures.
// It exits 1 when the window is empty and 2 when indexed files are missing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"agricam/internal/config"
	"agricam/internal/logger"
	"agricam/internal/repository/sqlite"
	"agricam/internal/service/export"
	"agricam/internal/service/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	minutes := flag.Int("minutes", storage.DefaultWindowMinutes, "Window in minutes to export")
	output := flag.String("output", "data/exports", "Output directory")
	sample := flag.Bool("sample", false, "Copy a sample of the images")
	sampleRate := flag.Int("sample-rate", 10, "Copy every Nth image when sampling")
	flag.Parse()

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	appLog, err := logger.NewLogger(cfg)
	if err != nil {
		db.Close()
		log.Fatalf("Failed to create logger: %v", err)
	}

	store := storage.NewFileStore(cfg, appLog.Named("storage"), sqlite.NewImageRepository(db))
	opts := export.Options{Minutes: *minutes, OutputDir: *output}
	if *sample {
		opts.SampleEvery = max(*sampleRate, 1)
	}

	res, err := export.NewExporter(store, appLog.Named("export")).Export(opts)
	db.Close()
	appLog.Sync()
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	os.Exit(report(res, *minutes))
}

func report(res *export.Result, minutes int) int {
	if res.Total == 0 {
		fmt.Printf("No captures in the last %d minutes\n", minutes)
		return 1
	}

	fmt.Printf("Total images:    %d\n", res.Total)
	fmt.Printf("Average quality: %.2f\n", res.AvgQuality)
	fmt.Printf("Min quality:     %.2f\n", res.MinQuality)
	fmt.Printf("Max quality:     %.2f\n", res.MaxQuality)
	fmt.Printf("CSV:             %s\n", res.CSVPath)
	fmt.Printf("Report:          %s\n", res.ReportPath)
	if res.SampleDir != "" {
		fmt.Printf("Samples:         %d in %s\n", res.Sampled, res.SampleDir)
	}

	if n := len(res.MissingFiles); n > 0 {
		fmt.Printf("Warning: %d indexed files are missing\n", n)
		return 2
	}
	return 0
}
