package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/collectdesk/collectdesk/internal/app"
	"github.com/collectdesk/collectdesk/internal/config"
)

func main() {
	path := flag.String("fixture", "fixtures/sample.json", "JSON fixture with officers and customers")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		log.Fatalf("seed requires STORE_DRIVER=%s, got %s", config.StoreDriverPostgres, cfg.Store.Driver)
	}

	structuredLogger := app.NewLogger(cfg.Logging, nil)

	fixture, err := app.ReadFixtureFile(*path)
	if err != nil {
		log.Fatalf("failed to read fixture: %v", err)
	}

	a, err := app.New(ctx, cfg, structuredLogger)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer a.Close()

	if err := a.Seed(ctx, fixture); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	fmt.Printf("Seeded %d officers and %d customers from %s\n", len(fixture.Officers), len(fixture.Customers), *path)
}
