package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/fieldmap/internal/pkg/config"
)

// migration is one schema step with its optional rollback.
type migration struct {
	up   string
	down string
}

var migrations = []migration{
	{up: "migrations/001_init_extensions.sql"},
	{up: "migrations/002_fields.sql", down: "migrations/002_fields.down.sql"},
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("fieldmap-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	switch os.Args[1] {
	case "up":
		runMigrations(ctx, pool)
	case "down":
		rollbackMigrations(ctx, pool)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) {
	for _, m := range migrations {
		execFile(ctx, pool, m.up)
	}
	log.Println("all migrations applied")
}

// rollbackMigrations undoes every step that has a down file, newest first.
// Extensions are left installed.
func rollbackMigrations(ctx context.Context, pool *pgxpool.Pool) {
	for i := len(migrations) - 1; i >= 0; i-- {
		if migrations[i].down == "" {
			continue
		}
		execFile(ctx, pool, migrations[i].down)
	}
	log.Println("all migrations rolled back")
}

func execFile(ctx context.Context, pool *pgxpool.Pool, f string) {
	data, err := os.ReadFile(f)
	if err != nil {
		log.Fatalf("read %s: %v", f, err)
	}

	if _, err := pool.Exec(ctx, string(data)); err != nil {
		log.Fatalf("exec %s: %v", f, err)
	}

	fmt.Printf("OK  %s\n", f)
}
