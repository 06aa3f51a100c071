// Package ledger persists pipeline state in SQLite: the per-item stage
// ledger, ingest targets, dedup fingerprints, approval requests, and
// publish records.
package ledger
