package main

import (
	"testing"

	"repost/internal/testsupport"
)

func TestStatusFallsBackToLedger(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "daemon: not running")
	requireContains(t, out, "queue is empty")

	store := testsupport.MustOpenStore(t, env.cfg)
	testsupport.SeedItem(t, store, "post-status")

	out, err = runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status with items: %v", err)
	}
	requireContains(t, out, "Pending")
}
