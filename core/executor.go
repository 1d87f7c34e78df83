package core

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/oxhq/replx/internal/config"
	"github.com/oxhq/replx/internal/sidelog"
	"github.com/oxhq/replx/internal/textenc"
)

// Retry schedule: exponential backoff from retryBase, doubling per
// attempt, each sleep capped at retryMaxSleep. The per-transaction
// budget is bounded by the run deadline.
const (
	retryBase     = 200 * time.Millisecond
	retryMaxSleep = 30 * time.Second
)

// Executor applies journaled transactions in journal order. It is
// single-threaded: every file mutation and journal checkpoint is
// serialized through this one loop, which keeps the rename-ordering
// and collision invariants trivially true.
type Executor struct {
	journal *Journal
	cfg     *config.Config
	side    *sidelog.Logger
	writer  *AtomicWriter

	// renamed maps original relative paths to their current names,
	// in completion order, so transaction paths recorded at scan
	// time resolve to live locations.
	renamed []renameRecord

	// sleep and now are replaceable for tests.
	sleep func(time.Duration)
	now   func() time.Time
}

type renameRecord struct {
	old string
	new string
}

// NewExecutor builds an executor over an opened journal.
func NewExecutor(j *Journal, cfg *config.Config, side *sidelog.Logger) *Executor {
	e := &Executor{
		journal: j,
		cfg:     cfg,
		side:    side,
		writer:  NewAtomicWriter(),
		sleep:   time.Sleep,
		now:     time.Now,
	}
	e.renamed = completedRenames(j)
	return e
}

// completedRenames replays the journal's COMPLETED rename
// transactions in order, which is how both resumption and mid-run
// path resolution see the tree's current shape. Each record's old
// side is itself resolved through the records before it, so renames
// inside already-renamed folders chain correctly.
func completedRenames(j *Journal) []renameRecord {
	var recs []renameRecord
	for _, tx := range j.Transactions {
		if tx.Type.IsRename() && tx.Status == StatusCompleted {
			recs = append(recs, renameStep(recs, tx))
		}
	}
	return recs
}

// renameStep computes the record a completed rename contributes,
// given the records accumulated so far.
func renameStep(recs []renameRecord, tx *Transaction) renameRecord {
	cur := applyRenames(recs, tx.Path)
	dstRel := tx.NewBasename
	if d := path.Dir(cur); d != "." {
		dstRel = d + "/" + tx.NewBasename
	}
	return renameRecord{old: cur, new: dstRel}
}

// applyRenames maps a scan-time relative path to its current
// location by applying every completed rename along the prefix in
// completion order.
func applyRenames(recs []renameRecord, rel string) string {
	cur := rel
	for _, r := range recs {
		if cur == r.old {
			cur = r.new
		} else if len(cur) > len(r.old) && cur[:len(r.old)] == r.old && cur[len(r.old)] == '/' {
			cur = r.new + cur[len(r.old):]
		}
	}
	return cur
}

func (e *Executor) resolvePath(rel string) string {
	return applyRenames(e.renamed, rel)
}

func (e *Executor) abs(rel string) string {
	return filepath.Join(e.cfg.ScanRoot, filepath.FromSlash(rel))
}

// Run executes every non-terminal transaction. It returns the run
// summary; journal checkpoint failures abort immediately since
// without durability no further mutation is safe.
func (e *Executor) Run(ctx context.Context) (*Summary, error) {
	deadline := e.now().Add(e.cfg.Timeout())
	retryAt := make(map[string]time.Time)

	for {
		if err := ctx.Err(); err != nil {
			return e.summary(), err
		}

		tx, wait := e.next(retryAt)
		if tx == nil {
			break
		}
		if wait > 0 {
			e.sleep(wait)
			continue
		}

		if e.now().After(deadline) {
			tx.Status = StatusFailed
			tx.Error = "run deadline exceeded"
			if err := e.journal.Checkpoint(); err != nil {
				return e.summary(), err
			}
			continue
		}

		resuming := tx.Status == StatusRetryLater
		tx.Status = StatusInProgress
		if !resuming {
			// Re-attempts after backoff are internal bumps and do
			// not checkpoint.
			if err := e.journal.Checkpoint(); err != nil {
				return e.summary(), err
			}
		}

		if tx.Type == TxContentLine {
			if applyErr := e.applyContentBatch(tx); applyErr != nil {
				// The batch settles its own members on success and
				// on stale content; any other failure settles every
				// constituent with the same error, so a transient
				// one backs them off together.
				for _, member := range e.contentBatch(tx) {
					if member.Status == StatusInProgress || member.Status == StatusPending ||
						member.Status == StatusRetryLater {
						e.settle(member, applyErr, deadline, retryAt)
					}
				}
			}
		} else {
			e.settle(tx, e.applyRename(tx), deadline, retryAt)
		}

		if err := e.journal.Checkpoint(); err != nil {
			return e.summary(), err
		}
	}

	return e.summary(), nil
}

// next returns the first PENDING or due RETRY_LATER transaction in
// journal order. When only not-yet-due retries remain, it returns
// the shortest wait.
func (e *Executor) next(retryAt map[string]time.Time) (*Transaction, time.Duration) {
	var minWait time.Duration
	var waiting bool
	for _, tx := range e.journal.Transactions {
		switch tx.Status {
		case StatusPending:
			return tx, 0
		case StatusRetryLater:
			due := retryAt[tx.ID]
			if !due.After(e.now()) {
				return tx, 0
			}
			w := due.Sub(e.now())
			if !waiting || w < minWait {
				minWait = w
				waiting = true
			}
		}
	}
	if waiting {
		return nil, minWait
	}
	return nil, 0
}

// settle assigns the post-apply status for a transaction.
func (e *Executor) settle(tx *Transaction, applyErr error, deadline time.Time, retryAt map[string]time.Time) {
	switch {
	case applyErr == nil:
		tx.Status = StatusCompleted
		tx.Error = ""
	case errors.Is(applyErr, ErrCollisionAtExec) || errors.Is(applyErr, ErrStaleContent):
		tx.Status = StatusFailed
		tx.Error = applyErr.Error()
	case isTransient(applyErr):
		tx.RetryCount++
		backoff := retryBase << (tx.RetryCount - 1)
		if backoff > retryMaxSleep {
			backoff = retryMaxSleep
		}
		due := e.now().Add(backoff)
		if due.After(deadline) {
			tx.Status = StatusFailed
			tx.Error = fmt.Sprintf("retry budget exhausted: %v", applyErr)
			return
		}
		tx.Status = StatusRetryLater
		tx.Error = applyErr.Error()
		retryAt[tx.ID] = due
	default:
		tx.Status = StatusFailed
		tx.Error = applyErr.Error()
	}
}

// isTransient classifies errors worth retrying: busy files, lock
// contention and ephemeral permission denials. Missing files,
// read-only filesystems and exhausted disks are final.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, syscall.EBUSY),
		errors.Is(err, syscall.ETXTBSY),
		errors.Is(err, syscall.EAGAIN),
		errors.Is(err, syscall.EINTR):
		return true
	case errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, os.ErrNotExist):
		return false
	case os.IsPermission(errors.Cause(err)):
		return true
	}
	return false
}

// applyRename moves an entry to its new basename. The destination
// must not exist unless it is the entry itself (case-only renames on
// case-insensitive filesystems).
func (e *Executor) applyRename(tx *Transaction) error {
	cur := e.resolvePath(tx.Path)
	dstRel := tx.NewBasename
	if d := path.Dir(cur); d != "." {
		dstRel = d + "/" + tx.NewBasename
	}
	src := e.abs(cur)
	dst := e.abs(dstRel)

	if _, err := os.Lstat(src); err != nil {
		return errors.Wrapf(err, "rename source %s", cur)
	}

	if dstInfo, err := os.Lstat(dst); err == nil {
		srcInfo, serr := os.Lstat(src)
		if serr != nil || !os.SameFile(srcInfo, dstInfo) {
			if e.side != nil {
				e.side.Collision(string(tx.Type), cur, tx.NewBasename)
			}
			return errors.Wrapf(ErrCollisionAtExec, "%s -> %s", cur, tx.NewBasename)
		}
	}

	if err := os.Rename(src, dst); err != nil {
		return errors.Wrapf(err, "renaming %s", cur)
	}

	e.renamed = append(e.renamed, renameRecord{old: cur, new: dstRel})
	return nil
}

// contentBatch returns every pending content transaction for the
// same file as tx, in journal (ascending line) order, tx included.
func (e *Executor) contentBatch(tx *Transaction) []*Transaction {
	var batch []*Transaction
	for _, other := range e.journal.Transactions {
		if other.Type != TxContentLine || other.Path != tx.Path {
			continue
		}
		if other == tx || other.Status == StatusPending ||
			other.Status == StatusInProgress || other.Status == StatusRetryLater {
			batch = append(batch, other)
		}
	}
	return batch
}

// applyContentBatch rewrites a file once, applying every pending
// edit for it in ascending line order through a temp file and atomic
// rename. Members whose recorded bytes no longer match fail with
// ErrStaleContent; the others still apply. Each member is
// checkpointed COMPLETED only after the rename succeeds.
func (e *Executor) applyContentBatch(tx *Transaction) error {
	batch := e.contentBatch(tx)
	cur := e.resolvePath(tx.Path)
	absPath := e.abs(cur)

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return errors.Wrapf(err, "reading %s", cur)
	}

	codec, err := textenc.CodecFor(tx.Encoding)
	if err != nil {
		return errors.Wrapf(err, "encoding %q", tx.Encoding)
	}

	bom := tx.BOM
	body := raw
	if len(bom) > 0 {
		if len(raw) < len(bom) || string(raw[:len(bom)]) != string(bom) {
			return errors.Wrapf(ErrStaleContent, "%s: BOM changed", cur)
		}
		body = raw[len(bom):]
	}

	text, err := codec.Decode(body)
	if err != nil {
		return errors.Wrapf(err, "decoding %s", cur)
	}
	lines := textenc.SplitLines(text)

	encoded := make([][]byte, len(lines))
	for i, line := range lines {
		b, eerr := codec.Encode(line)
		if eerr != nil {
			return errors.Wrapf(eerr, "re-encoding %s line %d", cur, i+1)
		}
		encoded[i] = b
	}

	var applied []*Transaction
	for _, member := range batch {
		idx := member.LineNumber - 1
		if idx < 0 || idx >= len(lines) ||
			string(encoded[idx]) != string(member.OriginalLineBytes) {
			member.Status = StatusFailed
			member.Error = ErrStaleContent.Error()
			continue
		}
		encoded[idx] = member.NewLineBytes
		applied = append(applied, member)
	}

	if len(applied) == 0 {
		// Every member was stale; the file is untouched.
		return nil
	}

	out := make([]byte, 0, len(raw))
	out = append(out, bom...)
	for _, b := range encoded {
		out = append(out, b...)
	}

	if err := e.writer.WriteFile(absPath, out); err != nil {
		// The file is untouched (the temp never installed); the
		// caller settles every constituent with this error.
		return err
	}

	for _, member := range applied {
		member.Status = StatusCompleted
		member.Error = ""
	}
	return nil
}

// summary tallies terminal states across the journal.
func (e *Executor) summary() *Summary {
	s := &Summary{}
	for _, tx := range e.journal.Transactions {
		s.Add(tx)
	}
	return s
}
