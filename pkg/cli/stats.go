package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/quartzdata/chronicle/pkg/audit"
)

func newStatsCommand() *Command {
	cmd := &Command{
		Name:        "stats",
		Description: "Summarize the log by operation and actor",
		Flags:       flag.NewFlagSet("stats", flag.ExitOnError),
		Run:         runStats,
	}

	cmd.Flags.String("log", "audit.log", "Audit log file path")

	return cmd
}

func runStats(args []string) error {
	flags := flag.NewFlagSet("stats", flag.ExitOnError)
	logPath := flags.String("log", "audit.log", "Audit log file path")
	actor := flags.String("actor", "", "Only records for this actor")
	library := flags.String("library", "", "Only records for this library")

	if err := flags.Parse(args); err != nil {
		return err
	}

	stats, err := audit.CollectStats(*logPath, audit.Filter{Actor: *actor, Library: *library})
	if err != nil {
		return err
	}

	printStats(os.Stdout, stats)
	return nil
}

func printStats(w io.Writer, stats *audit.Stats) {
	fmt.Fprintf(w, "Total records: %d\n", stats.TotalRecords)
	if stats.MalformedLines > 0 {
		fmt.Fprintf(w, "Malformed lines: %d\n", stats.MalformedLines)
	}
	if stats.TimeRange != nil {
		fmt.Fprintf(w, "Time range: %s to %s\n",
			stats.TimeRange.Start.UTC().Format(time.RFC3339),
			stats.TimeRange.End.UTC().Format(time.RFC3339))
	}

	if len(stats.ByOperation) > 0 {
		fmt.Fprintf(w, "\nBy operation:\n")
		ops := make([]string, 0, len(stats.ByOperation))
		for op := range stats.ByOperation {
			ops = append(ops, string(op))
		}
		sort.Strings(ops)
		for _, op := range ops {
			fmt.Fprintf(w, "  %-20s %d\n", op, stats.ByOperation[audit.Operation(op)])
		}
	}

	if len(stats.ByActor) > 0 {
		fmt.Fprintf(w, "\nBy actor:\n")
		actors := make([]string, 0, len(stats.ByActor))
		for actor := range stats.ByActor {
			actors = append(actors, actor)
		}
		sort.Strings(actors)
		for _, actor := range actors {
			fmt.Fprintf(w, "  %-20s %d\n", actor, stats.ByActor[actor])
		}
	}
}
