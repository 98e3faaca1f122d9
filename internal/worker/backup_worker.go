// Package worker holds the background jobs run by fintrack-worker.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/internal/amqp"
	applog "fintrack/internal/log"
	"fintrack/internal/transfer"
)

const (
	backupPrefix = "finance-tracker-backup-"
	backupSuffix = ".json"
	backupLayout = "20060102T150405.000000000Z"
)

// Snapshotter produces the current state as an export document.
type Snapshotter interface {
	Snapshot(ctx context.Context) (transfer.Document, error)
}

// BackupWorker writes an export document to dir after every ledger change
// and keeps only the newest keep files.
type BackupWorker struct {
	source Snapshotter
	dir    string
	keep   int
	now    func() time.Time

	mu sync.Mutex
}

func NewBackupWorker(source Snapshotter, dir string, keep int) *BackupWorker {
	if keep < 1 {
		keep = 1
	}
	return &BackupWorker{source: source, dir: dir, keep: keep, now: time.Now}
}

// HandleLedgerEvent is the AMQP consumer callback.
func (w *BackupWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	fields := applog.NewFields().
		WithComponent(applog.ComponentWorker).
		WithOperation(ev.Operation)
	fields[applog.FieldCount] = ev.Count
	slog.InfoContext(ctx, "Processing ledger event", fields.ToSlice()...)

	if _, err := w.Backup(ctx); err != nil {
		return fmt.Errorf("backup after %s: %w", ev.Operation, err)
	}
	return nil
}

// Backup writes one snapshot and prunes old ones. It returns the file path.
func (w *BackupWorker) Backup(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	doc, err := w.source.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := backupPrefix + w.now().UTC().Format(backupLayout) + backupSuffix
	path := filepath.Join(w.dir, name)

	tmp, err := os.CreateTemp(w.dir, ".backup-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := transfer.Encode(tmp, doc); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename backup: %w", err)
	}

	removed, err := w.prune()
	if err != nil {
		slog.WarnContext(ctx, "Failed to prune old backups",
			applog.FieldComponent, applog.ComponentWorker, applog.FieldError, err.Error())
	}

	slog.InfoContext(ctx, "Backup written",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldFile, path,
		applog.FieldCount, len(doc.Transactions),
		"pruned", removed)
	return path, nil
}

// Backups lists existing backup files, newest first.
func (w *BackupWorker) Backups() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, backupPrefix) && strings.HasSuffix(n, backupSuffix) {
			names = append(names, n)
		}
	}
	// The timestamp layout sorts lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (w *BackupWorker) prune() (int, error) {
	names, err := w.Backups()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, n := range names[min(len(names), w.keep):] {
		if err := os.Remove(filepath.Join(w.dir, n)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", n, err)
		}
		removed++
	}
	return removed, nil
}
