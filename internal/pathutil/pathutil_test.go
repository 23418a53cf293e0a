package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	allowedDir := t.TempDir()
	otherDir := t.TempDir()

	subDir := filepath.Join(allowedDir, "subdir")
	if err := os.MkdirAll(subDir, 0700); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		allowedDirs []string
		errContains string
	}{
		{"inside allowed dir", filepath.Join(allowedDir, "b.json.gz"), []string{allowedDir}, ""},
		{"in subdirectory", filepath.Join(subDir, "b.json.gz"), []string{allowedDir}, ""},
		{"missing subdirectories", filepath.Join(allowedDir, "x", "y", "b.json.gz"), []string{allowedDir}, ""},
		{"the allowed dir itself", allowedDir, []string{allowedDir}, ""},
		{"second allowed dir", filepath.Join(otherDir, "b.json.gz"), []string{allowedDir, otherDir}, ""},
		{"dot-dot traversal", filepath.Join(allowedDir, "..", "etc", "passwd"), []string{allowedDir}, "outside allowed directories"},
		{"outside", filepath.Join(otherDir, "b.json.gz"), []string{allowedDir}, "outside allowed directories"},
		{"sibling with shared prefix", allowedDir + "-evil/b.json.gz", []string{allowedDir}, "outside allowed directories"},
		{"null byte", filepath.Join(allowedDir, "b\x00.json.gz"), []string{allowedDir}, "null byte"},
		{"empty", "", []string{allowedDir}, "empty"},
		{"no allowed dirs", filepath.Join(allowedDir, "b.json.gz"), nil, "no allowed directories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.allowedDirs)
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("ValidatePath() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidatePath() error = %v, want containing %q", err, tt.errContains)
			}
		})
	}
}

func TestValidatePath_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on Windows")
	}

	allowedDir := t.TempDir()
	outsideDir := t.TempDir()

	link := filepath.Join(allowedDir, "escape")
	if err := os.Symlink(outsideDir, link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	err := ValidatePath(filepath.Join(link, "b.json.gz"), []string{allowedDir})
	if err == nil {
		t.Error("ValidatePath() should reject a symlink leading outside the allowed dir")
	}
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"b.json.gz", "b.json.gz"},
		{"/b.json.gz", "b.json.gz"},
		{"/home/user/.refback/backups/b.json.gz", ".../backups/b.json.gz"},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.in); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in   string
		want string
	}{
		{"~/lab/refback.db", filepath.Join(home, "lab", "refback.db")},
		{"/abs/refback.db", "/abs/refback.db"},
		{"rel/refback.db", "rel/refback.db"},
		{"~user/refback.db", "~user/refback.db"},
	}
	for _, tt := range tests {
		got, err := ExpandHome(tt.in)
		if err != nil {
			t.Fatalf("ExpandHome(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAllowedBackupDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dirs, err := AllowedBackupDirs("")
	if err != nil {
		t.Fatalf("AllowedBackupDirs() error: %v", err)
	}
	if len(dirs) != 1 || dirs[0] != filepath.Join(home, ".refback", "backups") {
		t.Errorf("AllowedBackupDirs(\"\") = %v", dirs)
	}

	dirs, err = AllowedBackupDirs("/work")
	if err != nil {
		t.Fatalf("AllowedBackupDirs() error: %v", err)
	}
	if len(dirs) != 2 || dirs[1] != "/work" {
		t.Errorf("AllowedBackupDirs(\"/work\") = %v", dirs)
	}
}
