package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/transfer"
)

type fakeSource struct {
	doc transfer.Document
	err error
}

func (f *fakeSource) Snapshot(context.Context) (transfer.Document, error) {
	return f.doc, f.err
}

func TestBackupWritesAndPrunes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	w := NewBackupWorker(&fakeSource{doc: transfer.NewDocument(nil, nil, "USD", time.Now())}, dir, 2)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var written []string
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		w.now = func() time.Time { return at }
		path, err := w.Backup(context.Background())
		if err != nil {
			t.Fatalf("Backup %d: %v", i, err)
		}
		written = append(written, filepath.Base(path))
	}

	names, err := w.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("kept %d backups, want 2: %v", len(names), names)
	}
	if names[0] != written[3] || names[1] != written[2] {
		t.Fatalf("kept %v, want newest two of %v", names, written)
	}

	f, err := os.Open(filepath.Join(dir, names[0]))
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer f.Close()
	doc, err := transfer.Decode(f)
	if err != nil {
		t.Fatalf("backup is not a valid export document: %v", err)
	}
	if doc.DefaultCurrency != "USD" {
		t.Fatalf("defaultCurrency = %q", doc.DefaultCurrency)
	}
}

func TestHandleLedgerEventPropagatesSnapshotError(t *testing.T) {
	boom := errors.New("db locked")
	w := NewBackupWorker(&fakeSource{err: boom}, t.TempDir(), 3)
	err := w.HandleLedgerEvent(context.Background(), amqp.NewLedgerEvent("create", 1))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestBackupsMissingDir(t *testing.T) {
	w := NewBackupWorker(&fakeSource{}, filepath.Join(t.TempDir(), "nope"), 3)
	names, err := w.Backups()
	if err != nil || len(names) != 0 {
		t.Fatalf("Backups = %v, %v", names, err)
	}
}
