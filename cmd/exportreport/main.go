// Command exportreport writes an XLSX report of one owner's analyzed
// resumes to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/resumeiq/pipeline/internal/common"
	"github.com/resumeiq/pipeline/internal/export"
	"github.com/resumeiq/pipeline/internal/repository"
)

func main() {
	owner := flag.String("owner", "", "owner id to export")
	out := flag.String("out", "resumes.xlsx", "output file path")
	flag.Parse()

	cfg := common.LoadConfig()
	logger, cleanup := common.SetupLogger(cfg.Logging.File, cfg.Logging.Level)
	defer func() { _ = cleanup() }()

	if *owner == "" {
		fmt.Fprintln(os.Stderr, "usage: exportreport -owner <id> [-out <path>]")
		os.Exit(2)
	}
	if cfg.Database.DSN == "" {
		logger.Error("DB_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	jobs := repository.NewJobRepository(pool, logger)
	svc := export.NewService(jobs, logger)

	data, err := svc.ExportOwnerXLSX(ctx, *owner)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		logger.Error("write report failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}
