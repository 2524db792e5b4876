// Package cli provides the chronicle command-line interface for inspecting
// the audit log.
//
// # Overview
//
// This package implements the `chronicle` CLI tool for operators to read,
// export, verify, and summarize the JSONL audit log from the terminal. Every
// subcommand takes `--log` naming the log file (default "audit.log").
//
// # Commands
//
// tail: Print the most recent records
//
//	chronicle tail -n 20
//
// Filtered follow mode, printing records as they are appended:
//
//	chronicle tail -f --actor jane.doe --operation write
//
// export: Export records in another format
//
//	chronicle export --format csv -o audit.csv
//
// verify: Scan for malformed lines; a non-zero count exits 1
//
//	chronicle verify --log /var/log/chronicle/audit.log
//
// ingest: Load the log into the Postgres query archive
//
//	chronicle ingest --db postgres://localhost/chronicle
//
// stats: Counts by operation and actor
//
//	chronicle stats --library prices
package cli
