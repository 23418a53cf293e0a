package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/refback/internal/config"
	"github.com/nvandessel/refback/internal/logging"
	"github.com/nvandessel/refback/internal/ratelimit"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	settings := config.Default()
	settings.Sequence.Trials = 20
	settings.Sequence.MaxIterations = 2000
	settings.Store.DBPath = filepath.Join(tmpDir, "refback.db")

	var logBuf bytes.Buffer
	server, err := NewServer(&Config{
		Name:     "test-server",
		Version:  "v1.0.0",
		Settings: settings,
		Logger:   logging.NewLogger("info", &logBuf),
		AuditDir: filepath.Join(tmpDir, ".refback"),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server
}

func TestNewServer(t *testing.T) {
	server := newTestServer(t)

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if server.store == nil {
		t.Error("Server.store is nil")
	}
}

func TestNewServer_InvalidSettings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	settings := config.Default()
	settings.Sequence.Trials = 1

	if _, err := NewServer(&Config{Name: "x", Version: "v0", Settings: settings}); err == nil {
		t.Error("expected error for invalid settings")
	}
}

func TestHandleGenerateBlock(t *testing.T) {
	server := newTestServer(t)
	seed := uint64(12)

	_, out, err := server.handleGenerateBlock(context.Background(), nil, GenerateBlockInput{
		Trials:     30,
		Block:      2,
		StartTrial: 31,
		Feedback:   true,
		Seed:       &seed,
	})
	if err != nil {
		t.Fatalf("handleGenerateBlock failed: %v", err)
	}

	if out.Seed != seed {
		t.Errorf("Seed = %d, want %d", out.Seed, seed)
	}
	if len(out.Rows) != 30 {
		t.Fatalf("len(Rows) = %d, want 30", len(out.Rows))
	}
	if !out.Rows[0].Reference {
		t.Error("first row is not a reference trial")
	}
	for i, r := range out.Rows {
		if r.Trial != 31+i || r.Block != 2 || !r.Feedback {
			t.Errorf("row %d = %+v", i, r)
		}
	}

	// Same seed, same block.
	_, again, err := server.handleGenerateBlock(context.Background(), nil, GenerateBlockInput{
		Trials: 30, Block: 2, StartTrial: 31, Feedback: true, Seed: &seed,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := range out.Rows {
		if out.Rows[i] != again.Rows[i] {
			t.Fatalf("row %d differs for identical seed", i)
		}
	}
}

func TestHandleGenerateBlock_InvalidInput(t *testing.T) {
	server := newTestServer(t)

	tooHigh := 1.5
	_, _, err := server.handleGenerateBlock(context.Background(), nil, GenerateBlockInput{TargetProportion: &tooHigh})
	if err == nil {
		t.Error("expected error for target proportion above 1")
	}
}

func TestHandleGenerateBlock_TargetProportion(t *testing.T) {
	seed := uint64(3)
	zero, one := 0.0, 1.0

	tests := []struct {
		name   string
		target *float64
		want   float64
	}{
		{"explicit zero", &zero, 0},
		{"explicit one", &one, 1},
		// 3 adjacent pairs; 0.75 of them rounds to 2.
		{"config default", nil, 2.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t)
			_, out, err := server.handleGenerateBlock(context.Background(), nil, GenerateBlockInput{
				Trials:           4,
				TargetProportion: tt.target,
				Seed:             &seed,
			})
			if err != nil {
				t.Fatalf("handleGenerateBlock failed: %v", err)
			}
			if math.Abs(out.ClosestPossible-tt.want) > 1e-9 {
				t.Errorf("ClosestPossible = %v, want %v", out.ClosestPossible, tt.want)
			}
		})
	}
}

func TestHandleCreateAndListSessions(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	seed := uint64(5)

	_, created, err := server.handleCreateSession(ctx, nil, CreateSessionInput{Subject: "s07", Blocks: 2, Seed: &seed})
	if err != nil {
		t.Fatalf("handleCreateSession failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("empty session id")
	}
	if len(created.Blocks) != 2 || created.Trials != 40 {
		t.Errorf("got %d blocks and %d trials, want 2 and 40", len(created.Blocks), created.Trials)
	}
	if !created.Blocks[0].Feedback || created.Blocks[1].Feedback {
		t.Errorf("feedback flags = %v %v, want true false", created.Blocks[0].Feedback, created.Blocks[1].Feedback)
	}

	_, list, err := server.handleListSessions(ctx, nil, ListSessionsInput{Subject: "s07"})
	if err != nil {
		t.Fatalf("handleListSessions failed: %v", err)
	}
	if list.Count != 1 || list.Sessions[0].ID != created.ID {
		t.Errorf("ListSessions = %+v, want the created session", list)
	}

	_, none, err := server.handleListSessions(ctx, nil, ListSessionsInput{Subject: "nobody"})
	if err != nil {
		t.Fatal(err)
	}
	if none.Count != 0 {
		t.Errorf("Count = %d for unknown subject, want 0", none.Count)
	}
}

func TestHandlers_RateLimited(t *testing.T) {
	server := newTestServer(t)
	server.limiters = ratelimit.ToolLimiters{"refback_list_sessions": ratelimit.NewLimiter(0, 1)}
	ctx := context.Background()

	if _, _, err := server.handleListSessions(ctx, nil, ListSessionsInput{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, _, err := server.handleListSessions(ctx, nil, ListSessionsInput{})
	if !errors.Is(err, ratelimit.ErrLimited) {
		t.Errorf("second call error = %v, want ErrLimited", err)
	}
}

func TestHandlers_AuditLog(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	seed := uint64(3)

	if _, _, err := server.handleGenerateBlock(ctx, nil, GenerateBlockInput{Trials: 10, Seed: &seed}); err != nil {
		t.Fatalf("handleGenerateBlock: %v", err)
	}
	server.handleGenerateBlock(ctx, nil, GenerateBlockInput{Trials: 1})
	if _, _, err := server.handleListSessions(ctx, nil, ListSessionsInput{Subject: "s01"}); err != nil {
		t.Fatalf("handleListSessions: %v", err)
	}
	server.audit.Close()

	f, err := os.Open(filepath.Join(os.Getenv("HOME"), ".refback", AuditLogFile))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid audit line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}

	if len(entries) != 3 {
		t.Fatalf("got %d audit entries, want 3", len(entries))
	}
	if entries[0].Tool != "refback_generate_block" || entries[0].Status != "success" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[0].Params["trials"] != "10" || entries[0].Params["seeded"] != "true" {
		t.Errorf("entry 0 params = %v", entries[0].Params)
	}
	if entries[1].Status != "error" || entries[1].Error == "" {
		t.Errorf("entry 1 = %+v, want error status", entries[1])
	}
	if entries[2].Params["subject"] != "(set)" {
		t.Errorf("subject logged as %q, want (set)", entries[2].Params["subject"])
	}
}

func TestAuditParams(t *testing.T) {
	got := auditParams(map[string]any{"subject": "", "blocks": 3, "feedback": false})
	if _, ok := got["subject"]; ok {
		t.Error("empty subject should not be logged")
	}
	if got["blocks"] != "3" || got["feedback"] != "false" {
		t.Errorf("auditParams() = %v", got)
	}
	if auditParams(nil) != nil {
		t.Error("auditParams(nil) should be nil")
	}
}

func TestAuditLogger_NilSafe(t *testing.T) {
	var a *AuditLogger
	a.Log(AuditEntry{Tool: "x"})
	if err := a.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}
