// Package backup provides backup and restore of the refback session database.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/refback/internal/session"
	"github.com/nvandessel/refback/internal/store"
)

// Archive is the payload of a backup file.
type Archive struct {
	Version   int                `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
	Sessions  []*session.Session `json:"sessions"`
}

// Trials returns the number of trials across all archived sessions.
func (a *Archive) Trials() int {
	n := 0
	for _, s := range a.Sessions {
		n += s.Trials()
	}
	return n
}

// DefaultBackupDir returns the default backup directory (~/.refback/backups/).
func DefaultBackupDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".refback", "backups"), nil
}

// GenerateBackupPath creates a timestamped backup filename in the given directory.
func GenerateBackupPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s%s", filePrefix, now.Format("20060102-150405"), fileSuffix))
}

// Backup writes every stored session to a compressed backup file.
func Backup(ctx context.Context, sessions store.SessionStore, outputPath string) (*Header, error) {
	summaries, err := sessions.ListSessions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	archive := &Archive{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Sessions:  make([]*session.Session, 0, len(summaries)),
	}
	for _, sum := range summaries {
		sess, err := sessions.GetSession(ctx, sum.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", sum.ID, err)
		}
		archive.Sessions = append(archive.Sessions, sess)
	}

	return Write(outputPath, archive)
}

// RestoreMode controls how restore handles sessions that already exist.
type RestoreMode string

const (
	// RestoreMerge skips sessions whose id is already stored (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace overwrites stored sessions with the archived copy.
	RestoreReplace RestoreMode = "replace"
)

// ParseRestoreMode validates a mode name. Empty means merge.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch RestoreMode(s) {
	case "", RestoreMerge:
		return RestoreMerge, nil
	case RestoreReplace:
		return RestoreReplace, nil
	default:
		return "", fmt.Errorf("invalid restore mode %q (valid: merge, replace)", s)
	}
}

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	SessionsRestored int `json:"sessions_restored"`
	SessionsSkipped  int `json:"sessions_skipped"`
}

// Restore imports the sessions of a backup file into the store.
func Restore(ctx context.Context, sessions store.SessionStore, inputPath string, mode RestoreMode) (*RestoreResult, error) {
	archive, err := Read(inputPath)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, sess := range archive.Sessions {
		if mode != RestoreReplace {
			_, err := sessions.GetSession(ctx, sess.ID)
			switch {
			case err == nil:
				result.SessionsSkipped++
				continue
			case !errors.Is(err, store.ErrNotFound):
				return nil, fmt.Errorf("failed to check existing session %s: %w", sess.ID, err)
			}
		}

		if err := sessions.SaveSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to restore session %s: %w", sess.ID, err)
		}
		result.SessionsRestored++
	}

	return result, nil
}
