// Drops the node table for the current environment's table prefix.
// Usage: DATABASE_URL=... ENVIRONMENT=dev go run ./scripts/drop_tables.go
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"nodetree/internal/config"
	"nodetree/internal/repository/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	// SAFETY: never drop production data from a script
	if cfg.Environment == "prod" && os.Getenv("CONFIRM_DROP") != "yes" {
		log.Fatal("refusing to drop tables in prod without CONFIRM_DROP=yes")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }() // Error ignored: script exiting

	table := postgres.NewTableNames(cfg.TablePrefix).Nodes
	if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
		log.Fatalf("Failed to drop %s: %v", table, err)
	}

	fmt.Printf("Dropped %s (environment: %s)\n", table, cfg.Environment)
}
