package main

import (
	"context"
	"log"
	"time"

	"github.com/solutionargentrapide/paygate/internal/pkg/database"
	"github.com/solutionargentrapide/paygate/internal/pkg/env"
	"github.com/solutionargentrapide/paygate/internal/pkg/s3archive"
	"github.com/solutionargentrapide/paygate/internal/pkg/vopay"
)

const batchSize = 500

// One-shot archival of processed raw webhook events older than the
// retention window. Run from cron; does not delete source rows.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()

	cfg, err := s3archive.LoadConfig()
	if err != nil {
		log.Fatalf("[Archive] invalid configuration: %v", err)
	}
	if !cfg.IsEnabled() {
		log.Println("[Archive] S3 archiving is disabled, nothing to do")
		return
	}

	client, err := s3archive.NewClient(cfg)
	if err != nil {
		log.Fatalf("[Archive] S3 client setup failed: %v", err)
	}

	svc := vopay.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cutoff := cfg.Cutoff(time.Now().UTC())
	events, err := svc.ListArchivable(ctx, cutoff, batchSize)
	if err != nil {
		log.Fatalf("[Archive] listing archivable events failed: %v", err)
	}
	if len(events) == 0 {
		log.Printf("[Archive] no processed events older than %s", cutoff.Format(time.RFC3339))
		return
	}

	key, err := client.ArchiveEvents(ctx, events)
	if err != nil {
		log.Fatalf("[Archive] upload failed: %v", err)
	}
	log.Printf("[Archive] archived %d events to %s", len(events), key)
}
