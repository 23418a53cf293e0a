package simulation

import (
	"context"
	"fmt"
	"math"

	"github.com/nvandessel/refback/internal/sequence"
	"github.com/nvandessel/refback/internal/session"
)

// Summary aggregates search outcomes over a batch of seeds.
type Summary struct {
	Config          sequence.SearchConfig `json:"config"`
	Runs            int                   `json:"runs"`
	Converged       int                   `json:"converged"`
	ConvergenceRate float64               `json:"convergence_rate"`
	ClosestPossible float64               `json:"closest_possible"`
	MeanRate        float64               `json:"mean_rate"`
	MeanDistance    float64               `json:"mean_distance"`
	MinDistance     float64               `json:"min_distance"`
	MaxDistance     float64               `json:"max_distance"`
	MeanIterations  float64               `json:"mean_iterations"`
	MaxIterations   int                   `json:"max_iterations"`
}

// Run generates one reference stream per seed and summarizes the results.
// The context is checked between runs.
func Run(ctx context.Context, cfg sequence.SearchConfig, seeds []uint64) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	if len(seeds) == 0 {
		return Summary{}, fmt.Errorf("simulation needs at least one seed")
	}

	sum := Summary{
		Config:          cfg,
		ClosestPossible: sequence.ClosestPossible(cfg.Trials, cfg.TargetProportion),
		MinDistance:     math.Inf(1),
	}
	var rateTotal, distTotal, iterTotal float64

	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		res, err := sequence.Generate(cfg, session.BlockRand(seed, 0))
		if err != nil {
			return Summary{}, err
		}

		sum.Runs++
		if res.Converged {
			sum.Converged++
		}
		rateTotal += res.Rate
		distTotal += res.Distance
		iterTotal += float64(res.Iterations)
		sum.MinDistance = math.Min(sum.MinDistance, res.Distance)
		sum.MaxDistance = math.Max(sum.MaxDistance, res.Distance)
		if res.Iterations > sum.MaxIterations {
			sum.MaxIterations = res.Iterations
		}
	}

	n := float64(sum.Runs)
	sum.ConvergenceRate = float64(sum.Converged) / n
	sum.MeanRate = rateTotal / n
	sum.MeanDistance = distTotal / n
	sum.MeanIterations = iterTotal / n
	return sum, nil
}

// Seeds returns n consecutive seeds starting at first.
func Seeds(first uint64, n int) []uint64 {
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = first + uint64(i)
	}
	return seeds
}
