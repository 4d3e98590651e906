// Package main is a repair tool for dirty migration state. golang-migrate marks a version
// dirty when a migration is interrupted, and the server then refuses to start. This tool
// connects with the server's configuration, reports the current state and, when dirty,
// forces the recorded version (the current one, or -version) so the next start retries cleanly.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/cirrus-mro/cirrus-api/internal/config"
	"github.com/cirrus-mro/cirrus-api/internal/db"
)

func main() {
	target := flag.Int("version", -2, "version to force; defaults to the current version")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Connected to database successfully")

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	if !dirty && *target == -2 {
		log.Println("Migration state is already clean")
		return
	}

	force := int(version)
	if *target != -2 {
		force = *target
	}
	log.Printf("Forcing migration version %d...", force)
	if err := db.ForceVersion(database, force); err != nil {
		log.Fatalf("Failed to fix dirty state: %v", err)
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	log.Printf("Final migration state: version=%d, dirty=%v", version, dirty)
}
