// Package migrate backfills audit metadata onto symbol versions that
// predate audit enforcement.
//
// A run enumerates every symbol in the library and probes each version's
// metadata for an audit actor. Versions without one are planned for tagging;
// versions that already carry audit metadata are skipped, which makes
// repeated runs safe no-ops. In live mode each planned tag is applied
// through the engine's in-place metadata update, logged through the shared
// audit logger first so the attempt is on disk before the mutation runs.
// Dry runs compute and report the full plan without mutating anything and
// without logging per-entry records.
//
// A failed entry is recorded and the run continues; runs are expected to
// process large libraries unattended. The returned Summary aggregates
// counts, the plan, and per-entry failures.
package migrate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quartzdata/chronicle/pkg/audit"
	"github.com/quartzdata/chronicle/pkg/store"
)

// DefaultUser attributes historical data when no migration user is given.
const DefaultUser = "system_migration"

const defaultWorkers = 4

// Metadata keys stamped onto tagged versions.
const (
	auditUserKey  = "_audit_user_id"
	migratedKey   = "_audit_migrated"
	migratedAtKey = "_audit_migrated_at"
)

// tagAction is the action value recorded on per-entry audit records.
const tagAction = "add_audit_metadata"

// Config configures a migration run.
type Config struct {
	// Engine is the library to migrate.
	Engine store.Engine
	// Logger is the audit logger shared with the runtime wrapper.
	Logger *audit.Logger
	// User is attributed to every stamped version. Defaults to DefaultUser.
	User string
	// DryRun computes the plan without mutating or logging per-entry records.
	DryRun bool
	// Workers bounds concurrent symbol processing. Defaults to 4.
	Workers int
	// Log receives progress output. Defaults to a fresh logrus logger.
	Log *logrus.Logger
	// Metrics counts plan entries by outcome. Optional.
	Metrics *audit.Metrics
}

// Migrator walks a library and tags versions lacking audit metadata.
type Migrator struct {
	engine  store.Engine
	logger  *audit.Logger
	user    string
	dryRun  bool
	workers int
	log     *logrus.Logger
	metrics *audit.Metrics
}

// New validates config and builds a Migrator.
func New(config Config) (*Migrator, error) {
	if config.Engine == nil {
		return nil, fmt.Errorf("storage engine is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("audit logger is required")
	}
	if config.User == "" {
		config.User = DefaultUser
	}
	if config.Workers <= 0 {
		config.Workers = defaultWorkers
	}
	if config.Log == nil {
		config.Log = logrus.New()
	}
	return &Migrator{
		engine:  config.Engine,
		logger:  config.Logger,
		user:    config.User,
		dryRun:  config.DryRun,
		workers: config.Workers,
		log:     config.Log,
		metrics: config.Metrics,
	}, nil
}

// Run executes the migration and returns its summary. Per-entry failures are
// aggregated in the summary, not returned as the error; the error reports
// conditions that stopped the run itself, such as an unlistable library or a
// cancelled context.
func (m *Migrator) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.New().String()
	library := m.engine.Library()

	summary := &Summary{
		RunID:   runID,
		Library: library,
		DryRun:  m.dryRun,
	}

	symbols, err := m.engine.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	summary.Symbols = len(symbols)

	mode := "live"
	if m.dryRun {
		mode = "dry-run"
	}
	m.log.Infof("Starting %s migration %s: library=%s symbols=%d user=%s",
		mode, runID, library, len(symbols), m.user)

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(m.workers)

	for _, symbol := range symbols {
		symbol := symbol
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			result := m.processSymbol(ctx, runID, symbol)
			m.recordMetrics(result)

			mu.Lock()
			summary.observe(result)
			mu.Unlock()

			return ctx.Err()
		})
	}

	if err := eg.Wait(); err != nil {
		return summary, fmt.Errorf("migration run aborted: %w", err)
	}

	if err := m.logSummary(runID, summary); err != nil {
		m.log.Warnf("Failed to log migration summary: %v", err)
	}

	m.log.Infof("Migration %s finished: planned=%d tagged=%d skipped=%d failed=%d",
		runID, summary.Planned, summary.Tagged, summary.Skipped, summary.Failed)
	return summary, nil
}

// symbolResult carries one symbol's contribution to the summary.
type symbolResult struct {
	entries  []PlanEntry
	failures []*EntryError
	tagged   int
}

func (m *Migrator) recordMetrics(result symbolResult) {
	if m.metrics == nil {
		return
	}
	for _, entry := range result.entries {
		m.metrics.MigrationEntries.WithLabelValues(string(entry.Action)).Inc()
	}
	if n := len(result.failures); n > 0 {
		m.metrics.MigrationEntries.WithLabelValues("failed").Add(float64(n))
	}
}

// processSymbol plans and, in live mode, tags every untagged version of one
// symbol. Failures are returned for aggregation, never propagated.
func (m *Migrator) processSymbol(ctx context.Context, runID, symbol string) symbolResult {
	var result symbolResult

	infos, err := m.engine.ListVersions(ctx, symbol)
	if err != nil {
		result.failures = append(result.failures, &EntryError{Symbol: symbol, Version: -1, Err: err})
		return result
	}

	for _, info := range infos {
		metadata, err := m.probe(ctx, symbol, info.Version)
		if err != nil {
			result.failures = append(result.failures, &EntryError{Symbol: symbol, Version: info.Version, Err: err})
			continue
		}

		if _, tagged := metadata[auditUserKey]; tagged {
			result.entries = append(result.entries, PlanEntry{Symbol: symbol, Version: info.Version, Action: ActionSkip})
			continue
		}

		result.entries = append(result.entries, PlanEntry{Symbol: symbol, Version: info.Version, Action: ActionTag})

		if m.dryRun {
			continue
		}
		if err := m.tag(ctx, runID, symbol, info.Version, metadata); err != nil {
			result.failures = append(result.failures, &EntryError{Symbol: symbol, Version: info.Version, Err: err})
			continue
		}
		result.tagged++
		m.log.Debugf("Tagged %s version %d", symbol, info.Version)
	}

	return result
}

// probe reads one version's metadata. A version without metadata probes as
// an empty map.
func (m *Migrator) probe(ctx context.Context, symbol string, version int64) (map[string]interface{}, error) {
	asOf := version
	item, err := m.engine.ReadMetadata(ctx, symbol, store.ReadOptions{AsOf: &asOf})
	if err != nil {
		return nil, fmt.Errorf("metadata probe failed: %w", err)
	}
	if item.Metadata == nil {
		return map[string]interface{}{}, nil
	}
	return item.Metadata, nil
}

// tag logs the action and stamps the version in place. Existing metadata
// keys are preserved; only the audit stamp is added.
func (m *Migrator) tag(ctx context.Context, runID, symbol string, version int64, existing map[string]interface{}) error {
	rec := audit.NewRecord(m.user, audit.OpMigrateMetadata, []string{symbol}, m.engine.Library(),
		map[string]interface{}{
			"version": version,
			"action":  tagAction,
			"run_id":  runID,
		})
	if err := m.logger.Append(rec); err != nil {
		return err
	}

	stamped := store.CloneMetadata(existing)
	if stamped == nil {
		stamped = map[string]interface{}{}
	}
	stamped[auditUserKey] = m.user
	stamped[migratedKey] = true
	stamped[migratedAtKey] = time.Now().UTC().Format(time.RFC3339)

	return m.engine.UpdateVersionMetadata(ctx, symbol, version, stamped)
}

// logSummary appends the closing library-level record for the run.
func (m *Migrator) logSummary(runID string, summary *Summary) error {
	rec := audit.NewRecord(m.user, audit.OpMigrateMetadata, nil, m.engine.Library(),
		map[string]interface{}{
			"run_id":  runID,
			"action":  "migration_summary",
			"dry_run": summary.DryRun,
			"symbols": summary.Symbols,
			"planned": summary.Planned,
			"tagged":  summary.Tagged,
			"skipped": summary.Skipped,
			"failed":  summary.Failed,
		})
	return m.logger.Append(rec)
}
