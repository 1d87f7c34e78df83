package core

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	root := t.TempDir()
	cfg := execConfig(t, root)
	j, err := OpenJournal(cfg.JournalPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return NewExecutor(j, cfg, nil)
}

func TestSettleTransientBacksOff(t *testing.T) {
	e := newTestExecutor(t)
	tx := &Transaction{ID: "1", Type: TxFileName, Path: "a", NewBasename: "b", Status: StatusInProgress}
	retryAt := make(map[string]time.Time)
	deadline := time.Now().Add(time.Hour)

	busy := errors.Wrap(syscall.EBUSY, "renaming a")
	e.settle(tx, busy, deadline, retryAt)

	if tx.Status != StatusRetryLater {
		t.Fatalf("transient error should back off, got %s", tx.Status)
	}
	if tx.RetryCount != 1 {
		t.Errorf("retry count: %d", tx.RetryCount)
	}
	due, ok := retryAt[tx.ID]
	if !ok || due.Before(time.Now()) {
		t.Error("backoff deadline not scheduled")
	}

	// Backoff doubles per attempt.
	first := time.Until(due)
	e.settle(tx, busy, deadline, retryAt)
	second := time.Until(retryAt[tx.ID])
	if second <= first {
		t.Errorf("backoff should grow: %v then %v", first, second)
	}
}

func TestSettleBudgetExhaustionFails(t *testing.T) {
	e := newTestExecutor(t)
	tx := &Transaction{ID: "1", Type: TxFileName, Path: "a", NewBasename: "b", Status: StatusInProgress}
	retryAt := make(map[string]time.Time)

	// A deadline already in the past leaves no retry budget.
	deadline := time.Now().Add(-time.Second)
	e.settle(tx, errors.Wrap(syscall.EBUSY, "renaming a"), deadline, retryAt)

	if tx.Status != StatusFailed {
		t.Errorf("exhausted budget should fail, got %s", tx.Status)
	}
}

func TestSettleNonTransientFailsImmediately(t *testing.T) {
	e := newTestExecutor(t)
	tx := &Transaction{ID: "1", Type: TxFileName, Path: "a", NewBasename: "b", Status: StatusInProgress}
	deadline := time.Now().Add(time.Hour)

	e.settle(tx, errors.Wrap(os.ErrNotExist, "renaming a"), deadline, make(map[string]time.Time))
	if tx.Status != StatusFailed {
		t.Errorf("missing source should fail immediately, got %s", tx.Status)
	}
	if tx.RetryCount != 0 {
		t.Errorf("no retries expected: %d", tx.RetryCount)
	}
}

func TestSettleLogicalErrorsFail(t *testing.T) {
	e := newTestExecutor(t)
	deadline := time.Now().Add(time.Hour)

	tx := &Transaction{ID: "1", Type: TxFileName, Path: "a", NewBasename: "b", Status: StatusInProgress}
	e.settle(tx, errors.Wrap(ErrCollisionAtExec, "a -> b"), deadline, make(map[string]time.Time))
	if tx.Status != StatusFailed {
		t.Errorf("collision should fail, got %s", tx.Status)
	}

	tx2 := &Transaction{ID: "2", Type: TxContentLine, Path: "a", Status: StatusInProgress}
	e.settle(tx2, errors.Wrap(ErrStaleContent, "a line 3"), deadline, make(map[string]time.Time))
	if tx2.Status != StatusFailed {
		t.Errorf("stale content should fail, got %s", tx2.Status)
	}
}

func TestIsTransientClassification(t *testing.T) {
	transient := []error{
		syscall.EBUSY,
		syscall.ETXTBSY,
		syscall.EAGAIN,
		errors.Wrap(syscall.EBUSY, "wrapped"),
	}
	for _, err := range transient {
		if !isTransient(err) {
			t.Errorf("%v should be transient", err)
		}
	}

	final := []error{
		os.ErrNotExist,
		syscall.EROFS,
		syscall.ENOSPC,
		errors.New("unclassified"),
	}
	for _, err := range final {
		if isTransient(err) {
			t.Errorf("%v should be final", err)
		}
	}
}
