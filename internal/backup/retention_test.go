package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCountPolicy_KeepsN(t *testing.T) {
	now := time.Now()
	backups := []BackupInfo{
		{Path: "/b/backup-5.json.gz", CreatedAt: now},
		{Path: "/b/backup-4.json.gz", CreatedAt: now.Add(-1 * time.Hour)},
		{Path: "/b/backup-3.json.gz", CreatedAt: now.Add(-2 * time.Hour)},
		{Path: "/b/backup-2.json.gz", CreatedAt: now.Add(-3 * time.Hour)},
		{Path: "/b/backup-1.json.gz", CreatedAt: now.Add(-4 * time.Hour)},
	}

	keep := (&CountPolicy{MaxCount: 3}).Apply(backups)
	if len(keep) != 3 {
		t.Fatalf("CountPolicy.Apply() kept %d, want 3", len(keep))
	}
	if keep[0].Path != "/b/backup-5.json.gz" || keep[2].Path != "/b/backup-3.json.gz" {
		t.Errorf("kept %v, want the three newest", keep)
	}

	if keep := (&CountPolicy{MaxCount: 10}).Apply(backups); len(keep) != 5 {
		t.Errorf("CountPolicy.Apply() kept %d, want 5", len(keep))
	}
}

func TestAgePolicy_RemovesOld(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backups := []BackupInfo{
		{Path: "/b/new.json.gz", CreatedAt: now.Add(-1 * time.Hour)},
		{Path: "/b/recent.json.gz", CreatedAt: now.Add(-12 * time.Hour)},
		{Path: "/b/old.json.gz", CreatedAt: now.Add(-48 * time.Hour)},
		{Path: "/b/ancient.json.gz", CreatedAt: now.Add(-720 * time.Hour)},
	}

	policy := &AgePolicy{MaxAge: 24 * time.Hour, now: func() time.Time { return now }}
	if keep := policy.Apply(backups); len(keep) != 2 {
		t.Errorf("AgePolicy.Apply() kept %d, want 2", len(keep))
	}
}

func TestCompositePolicy_Union(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backups := []BackupInfo{
		{Path: "/b/3.json.gz", CreatedAt: now.Add(-1 * time.Hour)},
		{Path: "/b/2.json.gz", CreatedAt: now.Add(-2 * time.Hour)},
		{Path: "/b/1.json.gz", CreatedAt: now.Add(-100 * time.Hour)},
	}

	policy := &CompositePolicy{Policies: []RetentionPolicy{
		&CountPolicy{MaxCount: 1},
		&AgePolicy{MaxAge: 3 * time.Hour, now: func() time.Time { return now }},
	}}
	keep := policy.Apply(backups)
	if len(keep) != 2 {
		t.Fatalf("CompositePolicy.Apply() kept %d, want 2", len(keep))
	}
	if keep[0].Path != "/b/3.json.gz" || keep[1].Path != "/b/2.json.gz" {
		t.Errorf("kept %v, want order preserved", keep)
	}
}

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name     string
		maxCount int
		maxAge   string
		wantType string
		wantErr  bool
	}{
		{"default", 0, "", "count", false},
		{"count only", 5, "", "count", false},
		{"age only", 0, "30d", "age", false},
		{"both", 5, "2w", "composite", false},
		{"bad age", 0, "soon", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(tt.maxCount, tt.maxAge)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			var got string
			switch p.(type) {
			case *CountPolicy:
				got = "count"
			case *AgePolicy:
				got = "age"
			case *CompositePolicy:
				got = "composite"
			}
			if got != tt.wantType {
				t.Errorf("NewPolicy() type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestListBackupsAndApplyRetention(t *testing.T) {
	dir := t.TempDir()
	for _, day := range []int{1, 2, 3, 4} {
		ts := time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
		a := &Archive{Version: FormatVersion, CreatedAt: ts}
		if _, err := Write(GenerateBackupPath(dir, ts), a); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	backups, err := ListBackups(dir)
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(backups) != 4 {
		t.Fatalf("ListBackups() = %d, want 4", len(backups))
	}
	if !backups[0].CreatedAt.Equal(time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("newest backup CreatedAt = %v", backups[0].CreatedAt)
	}

	deleted, err := ApplyRetention(dir, &CountPolicy{MaxCount: 2})
	if err != nil {
		t.Fatalf("ApplyRetention() error = %v", err)
	}
	if len(deleted) != 2 {
		t.Errorf("deleted %d, want 2", len(deleted))
	}

	backups, _ = ListBackups(dir)
	if len(backups) != 2 {
		t.Errorf("after retention: %d backups, want 2", len(backups))
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("retention removed a non-backup file")
	}
}

func TestListBackups_MissingDir(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "none"))
	if err != nil || backups != nil {
		t.Errorf("ListBackups() = %v, %v; want nil, nil", backups, err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"720h", 720 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"", 0, true},
		{"d", 0, true},
		{"3y", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
