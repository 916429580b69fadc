package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/order-report/internal/config"
	"github.com/safar/order-report/internal/database"
	"github.com/safar/order-report/internal/ingest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	dataDir := cfg.Ingest.DataDir
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	loader := &ingest.Loader{DB: db, DataDir: dataDir}

	summary, err := loader.Run(context.Background())
	if err != nil {
		log.Fatalf("Ingest from %s: %v", dataDir, err)
	}

	log.Printf("Ingested %d users, %d products, %d orders, %d order items, %d payments",
		summary.Users, summary.Products, summary.Orders, summary.OrderItems, summary.Payments)
}
