package migrate

import (
	"fmt"
	"sort"
	"strings"
)

// Action classifies a plan entry.
type Action string

const (
	// ActionTag marks a version that will receive audit metadata.
	ActionTag Action = "tag"
	// ActionSkip marks a version that already carries audit metadata.
	ActionSkip Action = "skip"
)

// PlanEntry is one symbol version in the migration plan.
type PlanEntry struct {
	Symbol  string `json:"symbol"`
	Version int64  `json:"version"`
	Action  Action `json:"action"`
}

// EntryError reports a failure on one symbol version. Version -1 means the
// symbol could not be enumerated at all.
type EntryError struct {
	Symbol  string
	Version int64
	Err     error
}

func (e *EntryError) Error() string {
	if e.Version < 0 {
		return fmt.Sprintf("migrate %s: %v", e.Symbol, e.Err)
	}
	return fmt.Sprintf("migrate %s version %d: %v", e.Symbol, e.Version, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Summary aggregates the outcome of one migration run.
type Summary struct {
	RunID   string `json:"run_id"`
	Library string `json:"library"`
	DryRun  bool   `json:"dry_run"`

	// Symbols is the number of symbols enumerated in the library.
	Symbols int `json:"symbols"`
	// Planned counts versions needing a tag, whether or not it was applied.
	Planned int `json:"planned"`
	// Tagged counts versions actually stamped. Always zero on a dry run.
	Tagged int `json:"tagged"`
	// Skipped counts versions that already carried audit metadata.
	Skipped int `json:"skipped"`
	// Failed counts versions that errored during probing or tagging.
	Failed int `json:"failed"`

	Entries []PlanEntry   `json:"entries,omitempty"`
	Errors  []*EntryError `json:"-"`
}

// observe folds one symbol's results into the summary. Callers hold the
// summary lock.
func (s *Summary) observe(result symbolResult) {
	for _, entry := range result.entries {
		switch entry.Action {
		case ActionTag:
			s.Planned++
		case ActionSkip:
			s.Skipped++
		}
	}
	s.Entries = append(s.Entries, result.entries...)
	s.Tagged += result.tagged
	s.Failed += len(result.failures)
	s.Errors = append(s.Errors, result.failures...)
}

// sortEntries orders the plan by symbol then version for stable output.
func (s *Summary) sortEntries() {
	sort.Slice(s.Entries, func(i, j int) bool {
		if s.Entries[i].Symbol != s.Entries[j].Symbol {
			return s.Entries[i].Symbol < s.Entries[j].Symbol
		}
		return s.Entries[i].Version < s.Entries[j].Version
	})
}

// String renders a human-readable report of the run.
func (s *Summary) String() string {
	var b strings.Builder

	mode := "live"
	if s.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(&b, "Migration Summary (%s)\n", mode)
	fmt.Fprintf(&b, "  Run ID:  %s\n", s.RunID)
	fmt.Fprintf(&b, "  Library: %s\n", s.Library)
	fmt.Fprintf(&b, "  Symbols: %d\n", s.Symbols)
	fmt.Fprintf(&b, "  Planned: %d\n", s.Planned)
	fmt.Fprintf(&b, "  Tagged:  %d\n", s.Tagged)
	fmt.Fprintf(&b, "  Skipped: %d\n", s.Skipped)
	fmt.Fprintf(&b, "  Failed:  %d\n", s.Failed)

	if s.DryRun && len(s.Entries) > 0 {
		s.sortEntries()
		fmt.Fprintf(&b, "\nPlan:\n")
		for _, entry := range s.Entries {
			fmt.Fprintf(&b, "  %-4s %s version %d\n", entry.Action, entry.Symbol, entry.Version)
		}
	}

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "\nErrors:\n")
		for _, entryErr := range s.Errors {
			fmt.Fprintf(&b, "  %v\n", entryErr)
		}
	}

	return b.String()
}
