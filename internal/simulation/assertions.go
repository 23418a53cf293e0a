package simulation

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/nvandessel/refback/internal/interpreter"
	"github.com/nvandessel/refback/internal/sequence"
	"github.com/nvandessel/refback/internal/trials"
)

// AssertTrialTables checks every stored block: reference start, consistent
// memory labels, trigger codes, expected responses and trial numbering.
func AssertTrialTables(t *testing.T, result ScenarioResult) {
	t.Helper()
	alphabet := result.Scenario.Alphabet
	if alphabet == 0 {
		alphabet = trials.DefaultAlphabet
	}

	for si, sess := range result.Stored {
		next := 1
		for bi, table := range sess.Blocks {
			if table.Len() != result.Scenario.Config.Trials {
				t.Errorf("AssertTrialTables: session %d block %d: %d trials, want %d", si, bi, table.Len(), result.Scenario.Config.Trials)
				continue
			}
			if !result.Scenario.ContinuousNumbering {
				next = 1
			}

			want, err := interpreter.Interpret(table.Stims(), table.References())
			if err != nil {
				t.Errorf("AssertTrialTables: session %d block %d: %v", si, bi, err)
				continue
			}

			for i, r := range table.Rows() {
				if r.Stim < 0 || r.Stim >= alphabet {
					t.Errorf("AssertTrialTables: session %d block %d row %d: stim %d outside alphabet %d", si, bi, i, r.Stim, alphabet)
				}
				if r.IsSame != want.IsSame[i] || r.InMem != want.InMem[i] {
					t.Errorf("AssertTrialTables: session %d block %d row %d: labels (%v,%d), want (%v,%d)", si, bi, i, r.IsSame, r.InMem, want.IsSame[i], want.InMem[i])
				}
				if r.Trigger != trials.TriggerCode(r.Stim, r.Reference) {
					t.Errorf("AssertTrialTables: session %d block %d row %d: trigger %d, want %d", si, bi, i, r.Trigger, trials.TriggerCode(r.Stim, r.Reference))
				}
				if r.Expected != trials.ExpectedResponse(i, r.IsSame) {
					t.Errorf("AssertTrialTables: session %d block %d row %d: expected %q, want %q", si, bi, i, r.Expected, trials.ExpectedResponse(i, r.IsSame))
				}
				if r.Trial != next {
					t.Errorf("AssertTrialTables: session %d block %d row %d: trial %d, want %d", si, bi, i, r.Trial, next)
				}
				next++
			}
		}
	}
}

// AssertFeedbackOnlyInTraining asserts that only the first block of each
// session shows feedback.
func AssertFeedbackOnlyInTraining(t *testing.T, result ScenarioResult) {
	t.Helper()
	for si, sess := range result.Stored {
		for bi, table := range sess.Blocks {
			for _, r := range table.Rows() {
				if r.Feedback != (bi == 0) {
					t.Errorf("AssertFeedbackOnlyInTraining: session %d block %d trial %d: feedback=%v", si, bi, r.Trial, r.Feedback)
					break
				}
			}
		}
	}
}

// AssertRatesNear asserts that every block's reference stream lies within
// tol of the closest achievable rate.
func AssertRatesNear(t *testing.T, result ScenarioResult, tol float64) {
	t.Helper()
	cfg := result.Scenario.Config
	closest := sequence.ClosestPossible(cfg.Trials, cfg.TargetProportion)
	for si, sess := range result.Stored {
		for bi, table := range sess.Blocks {
			rate := sequence.AdjacentEqualityRate(table.References())
			if math.Abs(rate-closest) > tol {
				t.Errorf("AssertRatesNear: session %d block %d: rate %.4f, closest %.4f, tol %.4f", si, bi, rate, closest, tol)
			}
		}
	}
}

// AssertStoredMatchesBuilt asserts that the store round trip preserved
// every trial table.
func AssertStoredMatchesBuilt(t *testing.T, result ScenarioResult) {
	t.Helper()
	for i := range result.Built {
		want, _ := json.Marshal(result.Built[i].Blocks)
		got, _ := json.Marshal(result.Stored[i].Blocks)
		if string(got) != string(want) {
			t.Errorf("AssertStoredMatchesBuilt: session %d: stored blocks differ from built", i)
		}
	}
}

// ConvergedFraction returns the share of blocks whose search converged.
func ConvergedFraction(result ScenarioResult) float64 {
	total, converged := 0, 0
	for _, sess := range result.Built {
		for _, res := range sess.Searches {
			total++
			if res.Converged {
				converged++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(converged) / float64(total)
}
