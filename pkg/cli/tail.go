package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/quartzdata/chronicle/pkg/audit"
)

func newTailCommand() *Command {
	cmd := &Command{
		Name:        "tail",
		Description: "Print the most recent audit records",
		Flags:       flag.NewFlagSet("tail", flag.ExitOnError),
		Run:         runTail,
	}

	cmd.Flags.String("log", "audit.log", "Audit log file path")
	cmd.Flags.Int("n", 10, "Number of recent records to print")
	cmd.Flags.Bool("f", false, "Keep the log open and print records as they are appended")

	return cmd
}

func runTail(args []string) error {
	flags := flag.NewFlagSet("tail", flag.ExitOnError)
	logPath := flags.String("log", "audit.log", "Audit log file path")
	n := flags.Int("n", 10, "Number of recent records to print")
	follow := flags.Bool("f", false, "Keep the log open and print records as they are appended")
	actor := flags.String("actor", "", "Only records for this actor")
	operation := flags.String("operation", "", "Only records for this operation")
	symbol := flags.String("symbol", "", "Only records touching this symbol")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *operation != "" && !audit.Operation(*operation).Valid() {
		return fmt.Errorf("unknown operation: %s", *operation)
	}
	filter := audit.Filter{
		Actor:     *actor,
		Operation: audit.Operation(*operation),
		Symbol:    *symbol,
	}

	if !*follow {
		res, err := audit.ReadLogs(*logPath, *n, filter)
		if err != nil {
			return err
		}
		printRecords(os.Stdout, res.Records)
		if res.Skipped > 0 {
			fmt.Fprintf(os.Stderr, "warning: %d malformed lines skipped\n", res.Skipped)
		}
		return nil
	}

	// One pass over the whole file yields both the tail to print and the
	// exact line-boundary offset to follow from, so no record can fall
	// between the initial print and the watch.
	res, offset, err := audit.ReadLogsFrom(*logPath, 0, filter)
	if err != nil {
		return err
	}
	records := res.Records
	if *n > 0 && len(records) > *n {
		records = records[len(records)-*n:]
	}
	printRecords(os.Stdout, records)

	return followLog(*logPath, offset, filter)
}

// followLog watches the log file and prints matching records as the logger
// appends them. Runs until interrupted.
func followLog(path string, offset int64, filter audit.Filter) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Catch up on anything appended before the watch started
	if offset, err = drainLog(path, offset, filter); err != nil {
		return err
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			if offset, err = drainLog(path, offset, filter); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		case <-sigChan:
			return nil
		}
	}
}

// drainLog prints matching records between offset and the end of the file,
// returning the new offset
func drainLog(path string, offset int64, filter audit.Filter) (int64, error) {
	res, next, err := audit.ReadLogsFrom(path, offset, filter)
	if err != nil {
		return offset, err
	}
	printRecords(os.Stdout, res.Records)
	return next, nil
}

// printRecords writes one JSON line per record, the same form records take
// in the log file
func printRecords(w io.Writer, records []audit.Record) {
	for _, rec := range records {
		data, err := rec.ToJSON()
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s\n", data)
	}
}
