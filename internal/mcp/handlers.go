package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/refback/internal/logging"
	"github.com/nvandessel/refback/internal/session"
	"github.com/nvandessel/refback/internal/trials"
)

// registerTools registers all refback MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "refback_generate_block",
		Description: "Generate one reference-back block: stimuli, reference flags, memory labels and trigger codes",
	}, s.handleGenerateBlock)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "refback_create_session",
		Description: "Generate a multi-block session (training block with feedback, test blocks without) and store it",
	}, s.handleCreateSession)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "refback_list_sessions",
		Description: "List stored sessions, optionally for one subject",
	}, s.handleListSessions)
}

func (s *Server) handleGenerateBlock(ctx context.Context, req *sdk.CallToolRequest, args GenerateBlockInput) (_ *sdk.CallToolResult, _ GenerateBlockOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("refback_generate_block", start, retErr, map[string]any{
			"trials":            args.Trials,
			"target_proportion": optionalFloat(args.TargetProportion),
			"max_iterations":    args.MaxIterations,
			"block":             args.Block,
			"start_trial":       args.StartTrial,
			"feedback":          args.Feedback,
			"seeded":            args.Seed != nil,
		})
	}()

	if err := s.limiters.Check("refback_generate_block"); err != nil {
		return nil, GenerateBlockOutput{}, err
	}

	cfg := s.cfg.Sequence
	if args.Trials != 0 {
		cfg.Trials = args.Trials
	}
	if args.TargetProportion != nil {
		cfg.TargetProportion = *args.TargetProportion
	}
	if args.MaxIterations != 0 {
		cfg.MaxIterations = args.MaxIterations
	}
	block := args.Block
	if block == 0 {
		block = 1
	}

	seed := s.seed(args.Seed)
	opts := trials.BlockOptions{Block: block, StartTrial: args.StartTrial, Feedback: args.Feedback}
	table, search, err := trials.NewBlock(opts, cfg, s.cfg.Session.Alphabet, session.BlockRand(seed, block))
	if err != nil {
		return nil, GenerateBlockOutput{}, fmt.Errorf("failed to generate block: %w", err)
	}

	logging.LogSearch(s.logger, block, search)
	s.searchLog.LogSearch("", block, search)

	return nil, GenerateBlockOutput{
		Seed:            seed,
		Rate:            search.Rate,
		ClosestPossible: search.ClosestPossible,
		Iterations:      search.Iterations,
		Converged:       search.Converged,
		Rows:            table.Rows(),
	}, nil
}

func (s *Server) handleCreateSession(ctx context.Context, req *sdk.CallToolRequest, args CreateSessionInput) (_ *sdk.CallToolResult, _ CreateSessionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("refback_create_session", start, retErr, map[string]any{
			"subject":              args.Subject,
			"blocks":               args.Blocks,
			"continuous_numbering": args.ContinuousNumbering,
			"seeded":               args.Seed != nil,
		})
	}()

	if err := s.limiters.Check("refback_create_session"); err != nil {
		return nil, CreateSessionOutput{}, err
	}

	blocks := args.Blocks
	if blocks == 0 {
		blocks = s.cfg.Session.Blocks
	}
	plan := session.DefaultPlan(blocks)
	plan.ContinuousNumbering = args.ContinuousNumbering || s.cfg.Session.ContinuousNumbering

	sess, err := session.Build(ctx, plan, s.cfg.Sequence, session.Options{
		Subject:  args.Subject,
		Seed:     s.seed(args.Seed),
		Alphabet: s.cfg.Session.Alphabet,
	})
	if err != nil {
		return nil, CreateSessionOutput{}, fmt.Errorf("failed to build session: %w", err)
	}

	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, CreateSessionOutput{}, fmt.Errorf("failed to save session: %w", err)
	}

	out := CreateSessionOutput{
		ID:        sess.ID,
		Seed:      sess.Seed,
		Trials:    sess.Trials(),
		CreatedAt: sess.CreatedAt,
		Blocks:    make([]BlockSummary, len(sess.Blocks)),
	}
	for i, bp := range sess.Plan.Blocks {
		res := sess.Searches[i]
		logging.LogSearch(s.logger, bp.Block, res)
		s.searchLog.LogSearch(sess.ID, bp.Block, res)
		out.Blocks[i] = BlockSummary{
			Block:      bp.Block,
			Feedback:   bp.Feedback,
			Rate:       res.Rate,
			Iterations: res.Iterations,
			Converged:  res.Converged,
		}
	}

	s.logger.Info("session created", "id", sess.ID, "subject", sess.Subject, "blocks", len(sess.Blocks))
	return nil, out, nil
}

func (s *Server) handleListSessions(ctx context.Context, req *sdk.CallToolRequest, args ListSessionsInput) (_ *sdk.CallToolResult, _ ListSessionsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("refback_list_sessions", start, retErr, map[string]any{"subject": args.Subject})
	}()

	if err := s.limiters.Check("refback_list_sessions"); err != nil {
		return nil, ListSessionsOutput{}, err
	}

	summaries, err := s.store.ListSessions(ctx, args.Subject)
	if err != nil {
		return nil, ListSessionsOutput{}, fmt.Errorf("failed to list sessions: %w", err)
	}

	items := make([]SessionListItem, 0, len(summaries))
	for _, sum := range summaries {
		items = append(items, SessionListItem{
			ID:        sum.ID,
			Subject:   sum.Subject,
			Seed:      sum.Seed,
			Blocks:    sum.Blocks,
			Trials:    sum.Trials,
			CreatedAt: sum.CreatedAt.Truncate(time.Second),
		})
	}

	return nil, ListSessionsOutput{Sessions: items, Count: len(items)}, nil
}

// seed resolves a tool's optional seed: explicit input, then the configured
// seed, then a fresh one.
func (s *Server) seed(in *uint64) uint64 {
	if in != nil {
		return *in
	}
	if s.cfg.Session.Seed != 0 {
		return s.cfg.Session.Seed
	}
	return session.NewSeed()
}

// optionalFloat dereferences p for audit params; nil is omitted.
func optionalFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
