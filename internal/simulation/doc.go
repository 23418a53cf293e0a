// Package simulation runs the reference-back generator over many seeds.
//
// Run is a batch harness that measures how often the reference search
// converges for a given configuration; it backs the "refback simulate"
// command.
//
// Runner executes Scenarios in tests: each scenario builds full sessions
// for a list of seeds, stores them in an isolated SQLite database and
// reads them back, so the assertions in this package check the whole path
// from search to stored trial table. Each runner gets its own database via
// t.TempDir() and a sandboxed HOME.
//
// Usage:
//
//	func TestTrainingBlockOnly(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:   "five-blocks",
//	        Config: sequence.DefaultSearchConfig(),
//	        Blocks: 5,
//	        Seeds:  simulation.Seeds(1, 10),
//	    })
//	    simulation.AssertFeedbackOnlyInTraining(t, result)
//	}
package simulation
