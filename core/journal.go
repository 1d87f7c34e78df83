package core

import (
	"encoding/json"
	"fmt"
	"os"
)

// JournalVersion is the schema version this build reads and writes.
// Loading a higher version aborts with ErrJournalVersion.
const JournalVersion = 1

// journalDoc is the on-disk shape: a version tag, a monotonic
// checkpoint sequence and the ordered transactions. The order is the
// execution order and never changes once written.
type journalDoc struct {
	Version           int            `json:"VERSION"`
	LastCheckpointSeq uint64         `json:"LAST_CHECKPOINT_SEQ"`
	Transactions      []*Transaction `json:"TRANSACTIONS"`
}

// Journal is the durable transaction store. It is owned by exactly
// one process at a time through an advisory lock file; checkpoints
// go through write-to-temp + fsync + atomic rename, so any
// checkpoint that returns nil survives process death.
type Journal struct {
	path     string
	lockPath string
	locked   bool
	writer   *AtomicWriter

	version       int
	checkpointSeq uint64
	Transactions  []*Transaction
}

// OpenJournal acquires the advisory lock at path and loads the
// stored document when one exists. A missing file yields an empty
// journal.
func OpenJournal(path string) (*Journal, error) {
	j := &Journal{
		path:     path,
		lockPath: path + ".lock",
		writer:   NewAtomicWriter(),
		version:  JournalVersion,
	}

	if err := j.acquireLock(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		j.releaseLock()
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	var doc journalDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		j.releaseLock()
		return nil, fmt.Errorf("parsing journal %s: %w", path, err)
	}
	if doc.Version > JournalVersion {
		j.releaseLock()
		return nil, fmt.Errorf("%w: journal has version %d, this build supports up to %d",
			ErrJournalVersion, doc.Version, JournalVersion)
	}

	j.version = doc.Version
	j.checkpointSeq = doc.LastCheckpointSeq
	j.Transactions = doc.Transactions
	return j, nil
}

// JournalExists reports whether a journal document is stored at
// path.
func JournalExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Append adds planned transactions at the end of the journal order;
// once checkpointed the order is frozen.
func (j *Journal) Append(txs ...*Transaction) {
	j.Transactions = append(j.Transactions, txs...)
}

// Replace installs a freshly planned transaction list, discarding
// any previously stored plan.
func (j *Journal) Replace(txs []*Transaction) {
	j.Transactions = txs
}

// Checkpoint durably persists the current state. When it returns
// nil, everything up to this point survives a crash.
func (j *Journal) Checkpoint() error {
	j.checkpointSeq++
	doc := journalDoc{
		Version:           JournalVersion,
		LastCheckpointSeq: j.checkpointSeq,
		Transactions:      j.Transactions,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding journal: %w", err)
	}
	if err := j.writer.WriteFile(j.path, data); err != nil {
		return fmt.Errorf("checkpointing journal: %w", err)
	}
	return nil
}

// CheckpointSeq returns the last persisted checkpoint sequence.
func (j *Journal) CheckpointSeq() uint64 {
	return j.checkpointSeq
}

// Close releases the advisory lock. The stored document is left in
// place for resumption or operator inspection.
func (j *Journal) Close() error {
	j.releaseLock()
	return nil
}

// acquireLock creates the lock file with this PID. A lock held by a
// dead process is broken; one held by a live process fails with
// ErrJournalBusy.
func (j *Journal) acquireLock() error {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(j.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Sync()
			f.Close()
			j.locked = true
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating journal lock: %w", err)
		}
		if j.lockIsStale() {
			os.Remove(j.lockPath)
			continue
		}
		return fmt.Errorf("%w (lock file %s)", ErrJournalBusy, j.lockPath)
	}
	return fmt.Errorf("%w (lock file %s)", ErrJournalBusy, j.lockPath)
}

// lockIsStale reports whether the lock file belongs to a dead
// process.
func (j *Journal) lockIsStale() bool {
	content, err := os.ReadFile(j.lockPath)
	if err != nil {
		return true
	}
	var pid int
	if _, err := fmt.Sscanf(string(content), "%d", &pid); err != nil {
		return true
	}
	return !isProcessAlive(pid)
}

func (j *Journal) releaseLock() {
	if !j.locked {
		return
	}
	os.Remove(j.lockPath)
	j.locked = false
}
