package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quartzdata/chronicle/pkg/migrate"
)

// Migration holds settings for a migration run, loadable from a YAML file
// for unattended use. Command-line flags override any value set here.
type Migration struct {
	// URI selects the storage engine, e.g. mem://lib, sqlite:///data/lib.db
	// or postgres://host/db.
	URI string `yaml:"uri"`
	// Library names the library inside the engine.
	Library string `yaml:"library"`
	// User is attributed to every tagged version.
	User string `yaml:"user"`
	// AuditLog is the JSONL log the run appends to.
	AuditLog string `yaml:"audit_log"`
	// Workers bounds concurrent symbol processing. 1 preserves symbol order.
	Workers int `yaml:"workers"`
	// Console mirrors appended records to stdout.
	Console bool `yaml:"console"`
	// DryRun reports the plan without mutating anything.
	DryRun bool `yaml:"dry_run"`
	// Schedule is an optional cron expression for periodic runs.
	Schedule string `yaml:"schedule"`
}

// DefaultMigration returns migration settings with defaults applied
func DefaultMigration() *Migration {
	return &Migration{
		User:     migrate.DefaultUser,
		AuditLog: "audit.log",
		Workers:  1,
		Console:  true,
	}
}

// LoadMigration reads migration settings from a YAML file. Keys absent from
// the file keep their defaults.
func LoadMigration(path string) (*Migration, error) {
	cfg := DefaultMigration()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse migration config: %w", err)
	}

	return cfg, nil
}

// Validate checks that a merged migration configuration can run
func (m *Migration) Validate() error {
	if m.URI == "" {
		return fmt.Errorf("storage URI is required")
	}
	if m.Library == "" {
		return fmt.Errorf("library is required")
	}
	if m.User == "" {
		return fmt.Errorf("migration user is required")
	}
	if m.AuditLog == "" {
		return fmt.Errorf("audit log path is required")
	}
	if m.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}
