// Package main is a diagnostic tool for database connectivity and the state of the audit
// trail. It connects with the server's configuration, prints the row count of each core
// table, the audit record count per entity type and the most recent audit records, and
// exits non-zero on any failure so it can gate deployments on a reachable database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/config"
	"github.com/cirrus-mro/cirrus-api/internal/db"
	"github.com/cirrus-mro/cirrus-api/internal/db/repositories"
)

func main() {
	latest := flag.Int("latest", 10, "number of recent audit records to print")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sqlxDB := sqlx.NewDb(database, "postgres")
	dashboard := repositories.NewDashboardRepository(sqlxDB)
	auditRepo := repositories.NewAuditRepository(sqlxDB)

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	fmt.Println("\n=== TABLES ===")
	counts, err := dashboard.TableCounts(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	printCounts(counts)

	fmt.Println("\n=== AUDIT RECORDS BY ENTITY TYPE ===")
	byType, err := auditRepo.CountByEntityType(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if len(byType) == 0 {
		fmt.Println("No audit records found!")
	}
	printCounts(byType)

	fmt.Printf("\n=== LATEST %d AUDIT RECORDS ===\n", *latest)
	records, err := auditRepo.LatestRecords(ctx, *latest)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, rec := range records {
		user := "-"
		if rec.UserID != nil {
			user = *rec.UserID
		}
		fields := ""
		if len(rec.ChangedFields) > 0 {
			fields = " [" + strings.Join(rec.ChangedFields, ", ") + "]"
		}
		fmt.Printf("%s  %-6s %s %s by %s%s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.Action, rec.EntityType, rec.EntityID, user, fields)
	}
}

func printCounts(counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-20s %d\n", name, counts[name])
	}
}
