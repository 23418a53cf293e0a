package simulation

import (
	"github.com/nvandessel/refback/internal/sequence"
	"github.com/nvandessel/refback/internal/session"
)

// Scenario defines a batch of sessions built with one configuration.
type Scenario struct {
	Name   string
	Config sequence.SearchConfig

	// Blocks is the number of blocks per session. 0 means session.DefaultBlocks.
	Blocks              int
	ContinuousNumbering bool

	// Alphabet is the number of stimulus symbols. 0 means the default.
	Alphabet int

	// Seeds lists one session seed per session to build.
	Seeds []uint64
}

// ScenarioResult holds the sessions a scenario produced.
type ScenarioResult struct {
	Scenario Scenario

	// Built are the sessions as generated.
	Built []*session.Session

	// Stored are the same sessions after a round trip through the store.
	Stored []*session.Session
}

// plan returns the session plan for the scenario.
func (s Scenario) plan() session.Plan {
	blocks := s.Blocks
	if blocks == 0 {
		blocks = session.DefaultBlocks
	}
	p := session.DefaultPlan(blocks)
	p.ContinuousNumbering = s.ContinuousNumbering
	return p
}
