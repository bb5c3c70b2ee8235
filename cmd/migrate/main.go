package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"

	"github.com/yourusername/hiring-api/internal/config"
	"github.com/yourusername/hiring-api/pkg/database"
)

// Ручное управление миграциями: up по умолчанию, -down откатывает всё,
// -force N снимает dirty-состояние после неудачной миграции.
func main() {
	down := flag.Bool("down", false, "roll back all migrations")
	force := flag.Int("force", -1, "force schema version (cleans dirty state)")
	source := flag.String("source", database.DefaultMigrationsSource, "migrations source URL")
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Database.Enabled() {
		log.Fatal("Database is not configured (check DATABASE_HOST env var)")
	}

	db, err := sql.Open("postgres", cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db, *source)
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case *force >= 0:
		fmt.Printf("Forcing migration version to %d to clean dirty state...\n", *force)
		err = m.Force(*force)
	case *down:
		fmt.Println("Rolling back all migrations...")
		err = m.Down()
	default:
		fmt.Println("Applying migrations...")
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Migration failed: %v", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Done. Schema version: %d (dirty: %t)\n", version, dirty)
}
