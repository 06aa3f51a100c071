// Package dedup detects previously seen content with 64-bit difference
// hashes indexed in a BK-tree, mirrored durably to the ledger database.
package dedup
