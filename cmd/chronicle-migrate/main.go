package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/quartzdata/chronicle/pkg/audit"
	"github.com/quartzdata/chronicle/pkg/config"
	"github.com/quartzdata/chronicle/pkg/migrate"
	"github.com/quartzdata/chronicle/pkg/store/engines"
)

var (
	configPath    = flag.String("config", "", "YAML migration config path (flags and positional args override it)")
	migrationUser = flag.String("migration-user", getEnv("CHRONICLE_MIGRATION_USER", migrate.DefaultUser), "Actor attributed to tagged versions")
	auditLog      = flag.String("audit-log", getEnv("CHRONICLE_AUDIT_LOG", "audit.log"), "Audit log file path")
	workers       = flag.Int("workers", 1, "Concurrent symbol workers")
	console       = flag.Bool("console", true, "Mirror audit records to stdout")
	dryRun        = flag.Bool("dry-run", false, "Report the plan without tagging or logging per-entry records")
	schedule      = flag.String("schedule", "", "Cron schedule for repeated runs (e.g. \"0 2 * * *\"). Empty runs once and exits")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	mc := config.DefaultMigration()
	if *configPath != "" {
		loaded, err := config.LoadMigration(*configPath)
		if err != nil {
			log.Fatalf("Failed to load migration config: %v", err)
		}
		mc = loaded
	}

	// Explicit flags win over the config file. flag.Visit only sees flags
	// actually set on the command line, so file values survive defaults.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "migration-user":
			mc.User = *migrationUser
		case "audit-log":
			mc.AuditLog = *auditLog
		case "workers":
			mc.Workers = *workers
		case "console":
			mc.Console = *console
		case "dry-run":
			mc.DryRun = *dryRun
		case "schedule":
			mc.Schedule = *schedule
		}
	})

	args := flag.Args()
	if len(args) >= 1 {
		mc.URI = args[0]
	}
	if len(args) >= 2 {
		mc.Library = args[1]
	}

	if err := mc.Validate(); err != nil {
		flag.Usage()
		log.Fatalf("Invalid migration config: %v", err)
	}

	ctx := context.Background()
	engine, err := engines.Open(ctx, mc.URI, mc.Library)
	if err != nil {
		log.Fatalf("Failed to open storage engine: %v", err)
	}

	logger, err := audit.New(mc.AuditLog, mc.Console)
	if err != nil {
		engine.Close()
		log.Fatalf("Failed to open audit log: %v", err)
	}

	migrator, err := migrate.New(migrate.Config{
		Engine:  engine,
		Logger:  logger,
		User:    mc.User,
		DryRun:  mc.DryRun,
		Workers: mc.Workers,
	})
	if err != nil {
		closeAll(engine, logger)
		log.Fatalf("Failed to build migrator: %v", err)
	}

	// One-shot mode
	if mc.Schedule == "" {
		summary, runErr := migrator.Run(ctx)
		if summary != nil {
			fmt.Println(summary.String())
		}
		closeAll(engine, logger)

		if runErr != nil {
			log.Fatalf("Migration failed: %v", runErr)
		}
		if summary.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	// Scheduled mode
	c := cron.New()
	_, err = c.AddFunc(mc.Schedule, func() {
		log.Printf("Starting scheduled migration of %s", mc.Library)

		summary, err := migrator.Run(context.Background())
		if summary != nil {
			log.Println(summary.String())
		}
		if err != nil {
			log.Printf("Scheduled migration failed: %v", err)
		}
	})
	if err != nil {
		closeAll(engine, logger)
		log.Fatalf("Failed to schedule migration: %v", err)
	}

	c.Start()
	log.Printf("Chronicle migrator started with schedule: %s", mc.Schedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	stopCtx := c.Stop()
	<-stopCtx.Done()

	closeAll(engine, logger)
	log.Println("Migrator stopped")
}

// closeAll closes the engine before the audit log so no append can race the
// log's final flush.
func closeAll(engine interface{ Close() error }, logger *audit.Logger) {
	if err := engine.Close(); err != nil {
		log.Printf("Failed to close storage engine: %v", err)
	}
	if err := logger.Close(); err != nil {
		log.Printf("Failed to close audit log: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <storage-uri> <library>\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Tags every symbol version lacking audit metadata so historical data\n")
	fmt.Fprintf(os.Stderr, "carries an attributed actor. Safe to re-run; tagged versions are skipped.\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  %s --dry-run sqlite:///var/lib/chronicle.db prices\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --migration-user backfill.bot postgres://localhost/chronicle prices\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --config migration.yaml\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
