package simulation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nvandessel/refback/internal/session"
	"github.com/nvandessel/refback/internal/store"
)

// Runner builds scenario sessions against a real SQLite session store.
type Runner struct {
	t     *testing.T
	store *store.SQLiteSessionStore
}

// NewRunner creates a simulation runner with an isolated SQLite store
// and sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteSessionStore(filepath.Join(tmpDir, "refback.db"))
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, store: s}
}

// Run builds, stores and reloads one session per scenario seed.
func (r *Runner) Run(scenario Scenario) ScenarioResult {
	r.t.Helper()
	ctx := context.Background()

	result := ScenarioResult{Scenario: scenario}
	for _, seed := range scenario.Seeds {
		built, err := session.Build(ctx, scenario.plan(), scenario.Config, session.Options{
			Subject:  scenario.Name,
			Seed:     seed,
			Alphabet: scenario.Alphabet,
		})
		if err != nil {
			r.t.Fatalf("%s: seed %d: build: %v", scenario.Name, seed, err)
		}
		if err := r.store.SaveSession(ctx, built); err != nil {
			r.t.Fatalf("%s: seed %d: save: %v", scenario.Name, seed, err)
		}
		stored, err := r.store.GetSession(ctx, built.ID)
		if err != nil {
			r.t.Fatalf("%s: seed %d: reload: %v", scenario.Name, seed, err)
		}

		result.Built = append(result.Built, built)
		result.Stored = append(result.Stored, stored)
	}
	return result
}

// Store exposes the runner's session store for extra queries.
func (r *Runner) Store() *store.SQLiteSessionStore {
	return r.store
}
