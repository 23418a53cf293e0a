// Package session builds multi-block reference-back sessions: a training
// block with feedback followed by test blocks without it.
package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/refback/internal/sanitize"
	"github.com/nvandessel/refback/internal/sequence"
	"github.com/nvandessel/refback/internal/trials"
)

// DefaultBlocks is the number of blocks in a standard session.
const DefaultBlocks = 5

// BlockPlan describes one block of a session.
type BlockPlan struct {
	Block    int  `json:"block" yaml:"block"`
	Feedback bool `json:"feedback" yaml:"feedback"`
}

// Plan is the ordered list of blocks in a session.
type Plan struct {
	Blocks []BlockPlan `json:"blocks" yaml:"blocks"`

	// ContinuousNumbering numbers trials across blocks instead of
	// restarting at 1 in every block.
	ContinuousNumbering bool `json:"continuous_numbering" yaml:"continuous_numbering"`
}

// DefaultPlan returns n blocks where only the first shows feedback.
func DefaultPlan(n int) Plan {
	blocks := make([]BlockPlan, n)
	for i := range blocks {
		blocks[i] = BlockPlan{Block: i + 1, Feedback: i == 0}
	}
	return Plan{Blocks: blocks}
}

// Validate checks that the plan has at least one block and unique block numbers.
func (p Plan) Validate() error {
	if len(p.Blocks) == 0 {
		return fmt.Errorf("session plan has no blocks")
	}
	seen := make(map[int]bool, len(p.Blocks))
	for _, b := range p.Blocks {
		if seen[b.Block] {
			return fmt.Errorf("duplicate block number %d in session plan", b.Block)
		}
		seen[b.Block] = true
	}
	return nil
}

// Session is a generated set of blocks.
type Session struct {
	ID        string                `json:"id"`
	Subject   string                `json:"subject,omitempty"`
	Seed      uint64                `json:"seed"`
	CreatedAt time.Time             `json:"created_at"`
	Config    sequence.SearchConfig `json:"config"`
	Plan      Plan                  `json:"plan"`
	Blocks    []*trials.Table       `json:"blocks"`
	Searches  []sequence.Result     `json:"searches"`
}

// Trials returns the number of trials across all blocks.
func (s *Session) Trials() int {
	n := 0
	for _, b := range s.Blocks {
		n += b.Len()
	}
	return n
}

// Options configures Build.
type Options struct {
	Subject  string
	Seed     uint64
	Alphabet int
}

// NewSeed picks a fresh session seed from the runtime's entropy source.
func NewSeed() uint64 {
	return rand.Uint64()
}

// BlockRand returns the generator used for a block of a seeded session.
// Each block draws from its own stream so blocks can be generated in any
// order with identical results.
func BlockRand(seed uint64, block int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(block)))
}

// Build generates every block of plan concurrently.
func Build(ctx context.Context, plan Plan, cfg sequence.SearchConfig, opts Options) (*Session, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	alphabet := opts.Alphabet
	if alphabet == 0 {
		alphabet = trials.DefaultAlphabet
	}

	s := &Session{
		ID:        uuid.New().String(),
		Subject:   sanitize.Subject(opts.Subject),
		Seed:      opts.Seed,
		CreatedAt: time.Now().UTC(),
		Config:    cfg,
		Plan:      plan,
		Blocks:    make([]*trials.Table, len(plan.Blocks)),
		Searches:  make([]sequence.Result, len(plan.Blocks)),
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, bp := range plan.Blocks {
		start := 1
		if plan.ContinuousNumbering {
			start = 1 + i*cfg.Trials
		}
		blockOpts := trials.BlockOptions{Block: bp.Block, StartTrial: start, Feedback: bp.Feedback}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			table, search, err := trials.NewBlock(blockOpts, cfg, alphabet, BlockRand(opts.Seed, bp.Block))
			if err != nil {
				return fmt.Errorf("block %d: %w", bp.Block, err)
			}
			s.Blocks[i] = table
			s.Searches[i] = search
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s, nil
}
