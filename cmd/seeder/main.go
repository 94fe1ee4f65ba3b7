// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/unclebandit/revive-backend/internal/app"
	"github.com/unclebandit/revive-backend/internal/config"
	"github.com/unclebandit/revive-backend/internal/db"
	"github.com/unclebandit/revive-backend/internal/logging"
	"github.com/unclebandit/revive-backend/internal/model"
	"github.com/unclebandit/revive-backend/internal/repository"
	"github.com/unclebandit/revive-backend/internal/service"
)

var demoLeads = []service.NewLead{
	{Name: "Alex Demo", Phone: "+14165550111", Email: "alex@example.com"},
	{Name: "Jordan Demo", Phone: "+14165550112", Email: "jordan@example.com"},
}

func main() {
	demo := flag.Bool("demo", false, "insert a demo tenant with two revive leads")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.PG.URL, cfg.PG.MaxOpenConns)
	if err != nil {
		log.Error("open database", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		log.Error("migrate", "err", err)
		os.Exit(1)
	}
	log.Info("schema applied")

	if !*demo {
		return
	}
	if err := seedDemo(ctx, cfg, repository.NewPostgres(conn), app.New(cfg, conn, nil, log)); err != nil {
		log.Error("seed demo data", "err", err)
		os.Exit(1)
	}
	log.Info("demo data seeded", "tenant_id", cfg.Scheduler.DefaultTenantID)
}

func seedDemo(ctx context.Context, cfg *config.Config, pg *repository.Postgres, deps *app.App) error {
	tenants := repository.NewTenantRepository(pg)
	tenantID := cfg.Scheduler.DefaultTenantID

	existing, err := tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("seeder - tenants.GetByID: %w", err)
	}
	if existing != nil {
		return nil
	}

	tenant := &model.Tenant{
		ID:        tenantID,
		Name:      "Demo Brokerage",
		Timezone:  "America/Toronto",
		Plan:      model.DefaultPlan,
		CreatedAt: time.Now().UTC(),
	}
	if err := tenants.Create(ctx, tenant); err != nil {
		return fmt.Errorf("seeder - tenants.Create: %w", err)
	}

	leads, err := deps.Scheduler.AddLeads(ctx, tenantID, demoLeads)
	if err != nil {
		return fmt.Errorf("seeder - AddLeads: %w", err)
	}
	jobs, err := deps.Scheduler.Enqueue(ctx, tenantID, len(leads), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("seeder - Enqueue: %w", err)
	}
	fmt.Printf("seeded %d leads and %d jobs\n", len(leads), len(jobs))
	return nil
}
