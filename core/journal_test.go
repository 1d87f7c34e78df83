package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJournalCheckpointAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planned_transactions.json")

	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal failed: %v", err)
	}

	j.Append(&Transaction{
		ID:          "abc123",
		Type:        TxFileName,
		Path:        "old.txt",
		NewBasename: "new.txt",
		Status:      StatusPending,
	})
	j.Append(&Transaction{
		ID:                "def456",
		Type:              TxContentLine,
		Path:              "a.txt",
		LineNumber:        1,
		OriginalLineBytes: []byte("hello\n"),
		NewLineBytes:      []byte("HI\n"),
		Encoding:          "utf-8",
		NewlineStyle:      "LF",
		Status:            StatusPending,
	})

	if err := j.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	seq := j.CheckpointSeq()
	if seq == 0 {
		t.Error("checkpoint sequence did not advance")
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reloaded, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer reloaded.Close()

	if len(reloaded.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(reloaded.Transactions))
	}
	if reloaded.CheckpointSeq() != seq {
		t.Errorf("expected checkpoint seq %d, got %d", seq, reloaded.CheckpointSeq())
	}
	tx := reloaded.Transactions[1]
	if string(tx.OriginalLineBytes) != "hello\n" {
		t.Errorf("line bytes did not round-trip: %q", tx.OriginalLineBytes)
	}
	if tx.Type != TxContentLine || tx.Status != StatusPending {
		t.Errorf("unexpected reloaded transaction: %+v", tx)
	}
}

func TestJournalWireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal failed: %v", err)
	}
	j.Append(&Transaction{ID: "x", Type: TxFolderName, Path: "dir", NewBasename: "newdir", Status: StatusPending})
	if err := j.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	j.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading journal: %v", err)
	}
	text := string(data)
	for _, want := range []string{`"VERSION"`, `"TRANSACTIONS"`, `"TYPE": "FOLDER_NAME"`, `"STATUS": "PENDING"`, `"PATH": "dir"`} {
		if !strings.Contains(text, want) {
			t.Errorf("journal document missing %s:\n%s", want, text)
		}
	}
}

func TestJournalVersionCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	doc := map[string]any{
		"VERSION":             99,
		"LAST_CHECKPOINT_SEQ": 1,
		"TRANSACTIONS":        []any{},
	}
	data, _ := json.Marshal(doc)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := OpenJournal(path)
	if err == nil {
		t.Fatal("expected version error")
	}
	if !strings.Contains(err.Error(), "version") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestJournalBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal failed: %v", err)
	}
	defer j.Close()

	// Second open while this live process holds the lock.
	if _, err := OpenJournal(path); err == nil {
		t.Fatal("expected ErrJournalBusy")
	}
}

func TestJournalStaleLockBroken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	// A lock left behind by a PID that cannot exist.
	if err := os.WriteFile(path+".lock", []byte("999999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("stale lock was not broken: %v", err)
	}
	j.Close()
}

func TestJournalRejectsUnknownStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	body := `{"VERSION":1,"LAST_CHECKPOINT_SEQ":1,"TRANSACTIONS":[{"ID":"x","TYPE":"FILE_NAME","PATH":"a","STATUS":"WEIRD","RETRY_COUNT":0}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenJournal(path); err == nil {
		t.Fatal("expected unmarshal rejection of unknown status")
	}
}
