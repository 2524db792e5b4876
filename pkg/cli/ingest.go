package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/quartzdata/chronicle/pkg/audit"
)

func newIngestCommand() *Command {
	cmd := &Command{
		Name:        "ingest",
		Description: "Load the log into the Postgres query archive",
		Flags:       flag.NewFlagSet("ingest", flag.ExitOnError),
		Run:         runIngest,
	}

	cmd.Flags.String("log", "audit.log", "Audit log file path")
	cmd.Flags.String("db", "", "Postgres archive URL")

	return cmd
}

func runIngest(args []string) error {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	logPath := flags.String("log", "audit.log", "Audit log file path")
	dbURL := flags.String("db", "", "Postgres archive URL")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *dbURL == "" {
		return fmt.Errorf("--db is required")
	}

	store, err := audit.OpenPGStore(*dbURL)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer store.Close()

	return ingestLog(context.Background(), *logPath, store)
}

// ingestLog loads every well-formed record from the log into the archive.
// The file stays the system of record; the archive only serves queries.
func ingestLog(ctx context.Context, path string, store *audit.PGStore) error {
	res, err := audit.ReadLogs(path, 0, audit.Filter{})
	if err != nil {
		return err
	}

	inserted := 0
	for _, rec := range res.Records {
		if err := store.Insert(ctx, rec); err != nil {
			return fmt.Errorf("failed to archive record %d of %d: %w", inserted+1, len(res.Records), err)
		}
		inserted++
	}

	fmt.Printf("Ingested %d records", inserted)
	if res.Skipped > 0 {
		fmt.Printf(" (%d malformed lines skipped)", res.Skipped)
	}
	fmt.Println()
	return nil
}
