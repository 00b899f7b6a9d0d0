package testsupport

import (
	"context"
	"testing"

	"alphapack/internal/config"
	"alphapack/internal/jobs"
)

// MustOpenStore opens the job ledger configured by cfg and closes it when
// the test ends.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()
	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedJob records a pending job of the given kind with placeholder paths.
func SeedJob(t testing.TB, store *jobs.Store, kind jobs.Kind) *jobs.Job {
	t.Helper()
	job, err := store.Create(context.Background(), kind, "in/"+string(kind), "out/"+string(kind))
	if err != nil {
		t.Fatalf("Create %s job: %v", kind, err)
	}
	return job
}
