package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/quartzdata/chronicle/pkg/audit"
)

func newExportCommand() *Command {
	cmd := &Command{
		Name:        "export",
		Description: "Export audit records as json, csv, or ndjson",
		Flags:       flag.NewFlagSet("export", flag.ExitOnError),
		Run:         runExport,
	}

	cmd.Flags.String("log", "audit.log", "Audit log file path")
	cmd.Flags.String("format", "json", "Output format: json, csv, or ndjson")
	cmd.Flags.String("o", "", "Output file (default stdout)")

	return cmd
}

func runExport(args []string) error {
	flags := flag.NewFlagSet("export", flag.ExitOnError)
	logPath := flags.String("log", "audit.log", "Audit log file path")
	format := flags.String("format", "json", "Output format: json, csv, or ndjson")
	output := flags.String("o", "", "Output file (default stdout)")
	actor := flags.String("actor", "", "Only records for this actor")
	library := flags.String("library", "", "Only records for this library")

	if err := flags.Parse(args); err != nil {
		return err
	}

	filter := audit.Filter{
		Actor:   *actor,
		Library: *library,
	}

	res, err := audit.ReadLogs(*logPath, 0, filter)
	if err != nil {
		return err
	}

	data, err := audit.Export(res.Records, audit.ExportFormat(*format))
	if err != nil {
		return err
	}

	if *output == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	if err := os.WriteFile(*output, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", *output, err)
	}
	fmt.Printf("Exported %d records to %s\n", len(res.Records), *output)
	return nil
}
