package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/refback/internal/sequence"
	"github.com/nvandessel/refback/internal/session"
	"github.com/nvandessel/refback/internal/trials"
)

// SQLiteSessionStore implements SessionStore using SQLite for persistence.
type SQLiteSessionStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteSessionStore opens (or creates) the database at dbPath.
func NewSQLiteSessionStore(dbPath string) (*SQLiteSessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteSessionStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file location.
func (s *SQLiteSessionStore) Path() string {
	return s.dbPath
}

// SaveSession stores a session in a single transaction.
func (s *SQLiteSessionStore) SaveSession(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if len(sess.Searches) != len(sess.Blocks) || len(sess.Plan.Blocks) != len(sess.Blocks) {
		return fmt.Errorf("session %s: plan, blocks and searches differ in length", sess.ID)
	}

	cfgJSON, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal search config: %w", err)
	}
	planJSON, err := json.Marshal(sess.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sess.ID); err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, subject, seed, created_at, search_config, plan)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, nullString(sess.Subject), strconv.FormatUint(sess.Seed, 10),
		sess.CreatedAt.UTC().Format(time.RFC3339Nano), string(cfgJSON), string(planJSON),
	); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	trialStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trials (session_id, position, row_index, trial, block, stim, reference,
			is_same, in_mem, feedback, trigger_code, expected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trial insert: %w", err)
	}
	defer trialStmt.Close()

	for pos, table := range sess.Blocks {
		bp := sess.Plan.Blocks[pos]
		res := sess.Searches[pos]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO blocks (session_id, position, block, feedback, rate, distance,
				closest_possible, iterations, converged)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, pos, bp.Block, boolToInt(bp.Feedback), res.Rate, res.Distance,
			res.ClosestPossible, res.Iterations, boolToInt(res.Converged),
		); err != nil {
			return fmt.Errorf("failed to insert block %d: %w", bp.Block, err)
		}

		for i, r := range table.Rows() {
			if _, err := trialStmt.ExecContext(ctx,
				sess.ID, pos, i, r.Trial, r.Block, r.Stim, boolToInt(r.Reference),
				boolToInt(r.IsSame), r.InMem, boolToInt(r.Feedback), r.Trigger, string(r.Expected),
			); err != nil {
				return fmt.Errorf("failed to insert trial %d of block %d: %w", r.Trial, bp.Block, err)
			}
		}
	}

	return tx.Commit()
}

// GetSession loads a session with all of its blocks.
func (s *SQLiteSessionStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		subject           sql.NullString
		seed, createdAt   string
		cfgJSON, planJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT subject, seed, created_at, search_config, plan
		FROM sessions WHERE id = ?`, id,
	).Scan(&subject, &seed, &createdAt, &cfgJSON, &planJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	sess := &session.Session{ID: id, Subject: subject.String}
	if sess.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid seed %q: %w", seed, err)
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if err := json.Unmarshal([]byte(cfgJSON), &sess.Config); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}
	if err := json.Unmarshal([]byte(planJSON), &sess.Plan); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	if sess.Searches, err = s.loadSearches(ctx, id); err != nil {
		return nil, err
	}
	if sess.Blocks, err = s.loadBlocks(ctx, id, len(sess.Searches)); err != nil {
		return nil, err
	}
	for i := range sess.Searches {
		sess.Searches[i].Stream = sess.Blocks[i].References()
	}
	return sess, nil
}

func (s *SQLiteSessionStore) loadSearches(ctx context.Context, id string) ([]sequence.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rate, distance, closest_possible, iterations, converged
		FROM blocks WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var searches []sequence.Result
	for rows.Next() {
		var (
			res       sequence.Result
			converged int
		)
		if err := rows.Scan(&res.Rate, &res.Distance, &res.ClosestPossible, &res.Iterations, &converged); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		res.Converged = converged != 0
		searches = append(searches, res)
	}
	return searches, rows.Err()
}

// loadBlocks rebuilds the n tables of a session in plan order.
func (s *SQLiteSessionStore) loadBlocks(ctx context.Context, id string, n int) ([]*trials.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, trial, block, stim, reference, is_same, in_mem, feedback, trigger_code, expected
		FROM trials WHERE session_id = ? ORDER BY position, row_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query trials: %w", err)
	}
	defer rows.Close()

	byBlock := make([][]trials.Row, n)
	for rows.Next() {
		var (
			pos                         int
			r                           trials.Row
			reference, isSame, feedback int
			expected                    string
		)
		if err := rows.Scan(&pos, &r.Trial, &r.Block, &r.Stim, &reference, &isSame,
			&r.InMem, &feedback, &r.Trigger, &expected); err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		if pos < 0 || pos >= n {
			return nil, fmt.Errorf("trial references unknown block position %d", pos)
		}
		r.Reference = reference != 0
		r.IsSame = isSame != 0
		r.Feedback = feedback != 0
		r.Expected = trials.Response(expected)
		byBlock[pos] = append(byBlock[pos], r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]*trials.Table, n)
	for i, rs := range byBlock {
		tables[i] = trials.NewTable(rs)
	}
	return tables, nil
}

// ListSessions returns session summaries, newest first.
func (s *SQLiteSessionStore) ListSessions(ctx context.Context, subject string) ([]SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT s.id, s.subject, s.seed, s.created_at,
			(SELECT COUNT(*) FROM blocks b WHERE b.session_id = s.id),
			(SELECT COUNT(*) FROM trials t WHERE t.session_id = s.id)
		FROM sessions s`
	var args []any
	if subject != "" {
		query += ` WHERE s.subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY s.created_at DESC, s.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum             SessionSummary
			subj            sql.NullString
			seed, createdAt string
		)
		if err := rows.Scan(&sum.ID, &subj, &seed, &createdAt, &sum.Blocks, &sum.Trials); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.Subject = subj.String
		if sum.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", seed, err)
		}
		if sum.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and, through cascades, its blocks and trials.
func (s *SQLiteSessionStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSessionStore) Close() error {
	return s.db.Close()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
