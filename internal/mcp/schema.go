package mcp

import (
	"time"

	"github.com/nvandessel/refback/internal/trials"
)

// GenerateBlockInput defines the input for refback_generate_block tool.
type GenerateBlockInput struct {
	Trials           int      `json:"trials,omitempty" jsonschema:"Number of trials in the block (default from config, minimum 2)"`
	TargetProportion *float64 `json:"target_proportion,omitempty" jsonschema:"Wanted fraction of equal adjacent reference flags between 0 and 1 (default from config)"`
	MaxIterations    int      `json:"max_iterations,omitempty" jsonschema:"Search budget in candidate draws (default from config)"`
	Block            int      `json:"block,omitempty" jsonschema:"Block number written to every row (default 1)"`
	StartTrial       int      `json:"start_trial,omitempty" jsonschema:"Number of the first trial (default 1)"`
	Feedback         bool     `json:"feedback,omitempty" jsonschema:"Whether feedback is shown after each trial"`
	Seed             *uint64  `json:"seed,omitempty" jsonschema:"Random seed for reproducible output"`
}

// GenerateBlockOutput defines the output for refback_generate_block tool.
type GenerateBlockOutput struct {
	Seed            uint64       `json:"seed" jsonschema:"Seed used for generation"`
	Rate            float64      `json:"rate" jsonschema:"Achieved adjacent-equality rate of the reference stream"`
	ClosestPossible float64      `json:"closest_possible" jsonschema:"Best rate achievable for the block length"`
	Iterations      int          `json:"iterations" jsonschema:"Candidates drawn by the search"`
	Converged       bool         `json:"converged" jsonschema:"Whether the rate equals the closest possible rate"`
	Rows            []trials.Row `json:"rows" jsonschema:"Trial table in presentation order"`
}

// CreateSessionInput defines the input for refback_create_session tool.
type CreateSessionInput struct {
	Subject             string  `json:"subject,omitempty" jsonschema:"Subject identifier stored with the session"`
	Blocks              int     `json:"blocks,omitempty" jsonschema:"Number of blocks; only the first shows feedback (default from config)"`
	ContinuousNumbering bool    `json:"continuous_numbering,omitempty" jsonschema:"Number trials across blocks instead of restarting at 1"`
	Seed                *uint64 `json:"seed,omitempty" jsonschema:"Random seed for reproducible output"`
}

// CreateSessionOutput defines the output for refback_create_session tool.
type CreateSessionOutput struct {
	ID        string         `json:"id" jsonschema:"Stored session id"`
	Seed      uint64         `json:"seed" jsonschema:"Seed used for generation"`
	Blocks    []BlockSummary `json:"blocks" jsonschema:"Per-block search outcome"`
	Trials    int            `json:"trials" jsonschema:"Total number of trials"`
	CreatedAt time.Time      `json:"created_at"`
}

// BlockSummary reports how a block's reference search ended.
type BlockSummary struct {
	Block      int     `json:"block"`
	Feedback   bool    `json:"feedback"`
	Rate       float64 `json:"rate"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
}

// ListSessionsInput defines the input for refback_list_sessions tool.
type ListSessionsInput struct {
	Subject string `json:"subject,omitempty" jsonschema:"Only list sessions for this subject"`
}

// ListSessionsOutput defines the output for refback_list_sessions tool.
type ListSessionsOutput struct {
	Sessions []SessionListItem `json:"sessions" jsonschema:"Stored sessions, newest first"`
	Count    int               `json:"count" jsonschema:"Number of sessions"`
}

// SessionListItem provides a list view of a session.
type SessionListItem struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject,omitempty"`
	Seed      uint64    `json:"seed"`
	Blocks    int       `json:"blocks"`
	Trials    int       `json:"trials"`
	CreatedAt time.Time `json:"created_at"`
}
