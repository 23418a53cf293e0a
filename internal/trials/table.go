// Package trials assembles reference-back trial tables from generated
// stimulus and reference streams.
package trials

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/refback/internal/interpreter"
	"github.com/nvandessel/refback/internal/sequence"
)

// DefaultAlphabet is the number of stimulus symbols in the task (X and O).
const DefaultAlphabet = 2

// StimulusNames maps stimulus indices of the default alphabet to letters.
var StimulusNames = []string{"X", "O"}

// ErrInvalidAlphabet is returned for alphabets with fewer than two symbols.
var ErrInvalidAlphabet = errors.New("stimulus alphabet must have at least 2 symbols")

// Row is one trial of a block, in presentation order.
type Row struct {
	Trial     int      `json:"trial"`
	Block     int      `json:"block"`
	Stim      int      `json:"stim"`
	Reference bool     `json:"reference"`
	IsSame    bool     `json:"is_same"`
	InMem     int      `json:"in_mem"`
	Feedback  bool     `json:"feedback"`
	Trigger   int      `json:"trigger"`
	Expected  Response `json:"expected"`
}

// Table is an immutable, ordered set of trial rows.
type Table struct {
	rows []Row
}

// NewTable copies rows into a table. Rows are kept in the given order.
func NewTable(rows []Row) *Table {
	return &Table{rows: append([]Row(nil), rows...)}
}

// Len returns the number of trials.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Row returns the i-th row.
func (t *Table) Row(i int) Row {
	return t.rows[i]
}

// Rows returns a copy of all rows.
func (t *Table) Rows() []Row {
	if t == nil {
		return nil
	}
	return append([]Row(nil), t.rows...)
}

// Stims returns the stimulus column.
func (t *Table) Stims() []int {
	out := make([]int, t.Len())
	for i := range out {
		out[i] = t.rows[i].Stim
	}
	return out
}

// References returns the reference-flag column.
func (t *Table) References() []bool {
	out := make([]bool, t.Len())
	for i := range out {
		out[i] = t.rows[i].Reference
	}
	return out
}

// IsSame returns the is_same column.
func (t *Table) IsSame() []bool {
	out := make([]bool, t.Len())
	for i := range out {
		out[i] = t.rows[i].IsSame
	}
	return out
}

// InMem returns the in_mem column.
func (t *Table) InMem() []int {
	out := make([]int, t.Len())
	for i := range out {
		out[i] = t.rows[i].InMem
	}
	return out
}

// BlockOptions carries the values the orchestration layer supplies per block.
type BlockOptions struct {
	// Block is the block number written to every row.
	Block int `json:"block" yaml:"block"`

	// StartTrial is the number of the first trial. Zero means 1.
	StartTrial int `json:"start_trial" yaml:"start_trial"`

	// Feedback marks every row of the block as showing feedback.
	Feedback bool `json:"feedback" yaml:"feedback"`
}

func (o BlockOptions) firstTrial() int {
	if o.StartTrial == 0 {
		return 1
	}
	return o.StartTrial
}

// Assemble zips the streams and their interpretation into a table.
func Assemble(stims []int, refs []bool, interp interpreter.Result, opts BlockOptions) (*Table, error) {
	n := len(stims)
	if len(refs) != n || len(interp.IsSame) != n || len(interp.InMem) != n {
		return nil, fmt.Errorf("assembling block %d: column lengths differ (stim=%d reference=%d is_same=%d in_mem=%d)",
			opts.Block, n, len(refs), len(interp.IsSame), len(interp.InMem))
	}

	first := opts.firstTrial()
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			Trial:     first + i,
			Block:     opts.Block,
			Stim:      stims[i],
			Reference: refs[i],
			IsSame:    interp.IsSame[i],
			InMem:     interp.InMem[i],
			Feedback:  opts.Feedback,
			Trigger:   TriggerCode(stims[i], refs[i]),
			Expected:  ExpectedResponse(i, interp.IsSame[i]),
		}
	}
	return &Table{rows: rows}, nil
}

// DrawStimuli draws n stimuli uniformly from an alphabet of the given size.
func DrawStimuli(n, alphabet int, rng *rand.Rand) ([]int, error) {
	if alphabet < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAlphabet, alphabet)
	}
	if n < 0 {
		return nil, fmt.Errorf("stimulus count must be non-negative, got %d", n)
	}
	stims := make([]int, n)
	for i := range stims {
		stims[i] = rng.IntN(alphabet)
	}
	return stims, nil
}

// NewBlock generates one block: stimuli, a reference stream matching cfg,
// their interpretation and the assembled table. The search result is
// returned for diagnostics.
func NewBlock(opts BlockOptions, cfg sequence.SearchConfig, alphabet int, rng *rand.Rand) (*Table, sequence.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sequence.Result{}, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	stims, err := DrawStimuli(cfg.Trials, alphabet, rng)
	if err != nil {
		return nil, sequence.Result{}, err
	}

	search, err := sequence.Generate(cfg, rng)
	if err != nil {
		return nil, sequence.Result{}, err
	}

	interp, err := interpreter.Interpret(stims, search.Stream)
	if err != nil {
		return nil, search, fmt.Errorf("interpreting block %d: %w", opts.Block, err)
	}

	table, err := Assemble(stims, search.Stream, interp, opts)
	if err != nil {
		return nil, search, err
	}
	return table, search, nil
}
