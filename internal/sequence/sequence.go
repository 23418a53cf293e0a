// Package sequence generates reference-flag streams whose adjacent-repeat
// rate approximates a target proportion.
//
// The search is a randomized local search over fair-coin candidates. The
// objective is piecewise constant, so the stopping target is the closest
// rate achievable with N-1 adjacent pairs rather than the raw proportion.
package sequence

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Defaults used by the reference-back task.
const (
	DefaultTrials           = 60
	DefaultTargetProportion = 0.75
	DefaultMaxIterations    = 10_000
)

// ErrInvalidConfig is wrapped by every configuration error returned from
// Validate and Generate.
var ErrInvalidConfig = errors.New("invalid sequence config")

// SearchConfig configures a single reference stream search.
type SearchConfig struct {
	// Trials is the stream length. Must be at least 2.
	Trials int `json:"trials" yaml:"trials"`

	// TargetProportion is the wanted fraction of equal adjacent pairs.
	// Range: 0.0 to 1.0
	TargetProportion float64 `json:"target_proportion" yaml:"target_proportion"`

	// MaxIterations caps the number of candidates drawn after the initial one.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
}

// DefaultSearchConfig returns 60 trials, a 0.75 same-pair target and 10000 iterations.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Trials:           DefaultTrials,
		TargetProportion: DefaultTargetProportion,
		MaxIterations:    DefaultMaxIterations,
	}
}

// Validate checks that the configuration is usable.
func (c SearchConfig) Validate() error {
	if c.Trials < 2 {
		return fmt.Errorf("%w: trials must be at least 2, got %d", ErrInvalidConfig, c.Trials)
	}
	if math.IsNaN(c.TargetProportion) || c.TargetProportion < 0 || c.TargetProportion > 1 {
		return fmt.Errorf("%w: target_proportion must be between 0 and 1, got %v", ErrInvalidConfig, c.TargetProportion)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: max_iterations must be positive, got %d", ErrInvalidConfig, c.MaxIterations)
	}
	return nil
}

// Result is the outcome of a search.
type Result struct {
	// Stream is the selected reference-flag stream. Stream[0] is always true.
	Stream []bool `json:"stream"`

	// Rate is the adjacent-equality rate of Stream.
	Rate float64 `json:"rate"`

	// Distance is |TargetProportion - Rate|.
	Distance float64 `json:"distance"`

	// ClosestPossible is the best rate achievable for the stream length.
	ClosestPossible float64 `json:"closest_possible"`

	// Iterations is the number of candidates drawn after the initial one.
	Iterations int `json:"iterations"`

	// Converged reports whether Rate equals ClosestPossible.
	Converged bool `json:"converged"`
}

// AdjacentEqualityRate returns the fraction of positions i where
// stream[i] == stream[i+1]. Streams shorter than 2 have no pairs and yield 0.
func AdjacentEqualityRate(stream []bool) float64 {
	if len(stream) < 2 {
		return 0
	}
	return float64(samePairs(stream)) / float64(len(stream)-1)
}

// ClosestPossible returns the adjacent-equality rate nearest to p that a
// stream of the given length can reach. Halves round to even.
func ClosestPossible(trials int, p float64) float64 {
	if trials < 2 {
		return 0
	}
	pairs := trials - 1
	return float64(targetSamePairs(pairs, p)) / float64(pairs)
}

// Generate searches for a reference stream matching cfg. A nil rng is
// replaced by a generator seeded from the runtime's entropy source.
//
// Exhausting MaxIterations is not an error: the best candidate seen is
// returned with Converged set to false.
func Generate(cfg SearchConfig, rng *rand.Rand) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	pairs := cfg.Trials - 1
	wantSame := targetSamePairs(pairs, cfg.TargetProportion)
	closest := float64(wantSame) / float64(pairs)

	best := candidate(cfg.Trials, rng)
	bestSame := samePairs(best)
	bestDiff := distance(cfg.TargetProportion, bestSame, pairs)

	iterations := 0
	for bestSame != wantSame && iterations < cfg.MaxIterations {
		iterations++
		stream := candidate(cfg.Trials, rng)
		same := samePairs(stream)
		diff := distance(cfg.TargetProportion, same, pairs)
		// The target count is optimal, so it wins distance ties too.
		if same == wantSame || diff < bestDiff {
			best, bestSame, bestDiff = stream, same, diff
		}
	}

	return Result{
		Stream:          best,
		Rate:            float64(bestSame) / float64(pairs),
		Distance:        bestDiff,
		ClosestPossible: closest,
		Iterations:      iterations,
		Converged:       bestSame == wantSame,
	}, nil
}

// candidate draws n fair-coin flags with the first forced to true.
func candidate(n int, rng *rand.Rand) []bool {
	stream := make([]bool, n)
	for i := range stream {
		stream[i] = rng.IntN(2) == 1
	}
	stream[0] = true
	return stream
}

func samePairs(stream []bool) int {
	same := 0
	for i := 1; i < len(stream); i++ {
		if stream[i] == stream[i-1] {
			same++
		}
	}
	return same
}

func targetSamePairs(pairs int, p float64) int {
	return int(math.RoundToEven(p * float64(pairs)))
}

func distance(p float64, same, pairs int) float64 {
	return math.Abs(p - float64(same)/float64(pairs))
}
