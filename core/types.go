// Package core implements the replx engine: tree traversal,
// occurrence scanning, transaction planning, the durable journal and
// the executor that applies planned mutations.
package core

import (
	"encoding/json"
	"fmt"
	"path"
	"strconv"

	"github.com/oxhq/replx/internal/textenc"
	"github.com/oxhq/replx/internal/util"
)

// TxType discriminates the transaction variants.
type TxType string

const (
	TxFileName    TxType = "FILE_NAME"
	TxFolderName  TxType = "FOLDER_NAME"
	TxContentLine TxType = "FILE_CONTENT_LINE"
	TxBinaryMatch TxType = "FILE_CONTENT_BINARY_MATCH"
	TxSymlinkName TxType = "SYMLINK_NAME"
)

func (t TxType) valid() bool {
	switch t {
	case TxFileName, TxFolderName, TxContentLine, TxBinaryMatch, TxSymlinkName:
		return true
	}
	return false
}

// IsRename reports whether the transaction renames a tree entry.
func (t TxType) IsRename() bool {
	return t == TxFileName || t == TxFolderName || t == TxSymlinkName
}

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	StatusPending    TxStatus = "PENDING"
	StatusInProgress TxStatus = "IN_PROGRESS"
	StatusCompleted  TxStatus = "COMPLETED"
	StatusFailed     TxStatus = "FAILED"
	StatusSkipped    TxStatus = "SKIPPED"
	StatusRetryLater TxStatus = "RETRY_LATER"
)

func (s TxStatus) valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusSkipped, StatusRetryLater:
		return true
	}
	return false
}

// Terminal reports whether the status is final.
func (s TxStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// Transaction is one planned mutation. Only Status, RetryCount and
// Error are mutated after planning; every other field is immutable.
// Paths are slash-separated and relative to the scan root, recorded
// as observed at scan time — the executor resolves the current
// location by replaying completed renames.
//
// ORIGINAL_LINE_BYTES and NEW_LINE_BYTES are raw bytes; Go's JSON
// encoder emits []byte as base64, which keeps the journal valid JSON
// for any input including invalid UTF-8.
type Transaction struct {
	ID   string `json:"ID"`
	Type TxType `json:"TYPE"`
	Path string `json:"PATH"`

	// Rename transactions.
	NewBasename   string `json:"NEW_BASENAME,omitempty"`
	CollisionWith string `json:"COLLISION_WITH,omitempty"`

	// Content transactions.
	LineNumber        int                  `json:"LINE_NUMBER,omitempty"`
	OriginalLineBytes []byte               `json:"ORIGINAL_LINE_BYTES,omitempty"`
	NewLineBytes      []byte               `json:"NEW_LINE_BYTES,omitempty"`
	Encoding          string               `json:"ENCODING,omitempty"`
	BOM               []byte               `json:"BOM_BYTES,omitempty"`
	NewlineStyle      textenc.NewlineStyle `json:"NEWLINE_STYLE,omitempty"`

	Status     TxStatus `json:"STATUS"`
	RetryCount int      `json:"RETRY_COUNT"`
	Error      string   `json:"ERROR,omitempty"`
}

// NewPath returns the rename target path (same parent, new
// basename).
func (t *Transaction) NewPath() string {
	dir := path.Dir(t.Path)
	if dir == "." {
		return t.NewBasename
	}
	return dir + "/" + t.NewBasename
}

// UnmarshalJSON validates the wire labels on read so a hand-edited
// journal cannot smuggle in unknown states.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type alias Transaction
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if !TxType(a.Type).valid() {
		return fmt.Errorf("unknown transaction type %q", a.Type)
	}
	if !TxStatus(a.Status).valid() {
		return fmt.Errorf("unknown transaction status %q", a.Status)
	}
	*t = Transaction(a)
	return nil
}

// NewRenameID derives the deterministic identifier of a rename
// transaction.
func NewRenameID(txType TxType, relPath, newBasename string) string {
	return util.ShortHash(string(txType), relPath, newBasename)
}

// NewContentID derives the deterministic identifier of a content
// transaction.
func NewContentID(relPath string, line int, original []byte) string {
	return util.ShortHash(string(TxContentLine), relPath, strconv.Itoa(line), string(original))
}

// Summary aggregates terminal counts for reporting.
type Summary struct {
	Completed int
	Failed    int
	Skipped   int
	Pending   int
	FailedTxs []*Transaction
}

// Add counts tx into the summary.
func (s *Summary) Add(tx *Transaction) {
	switch tx.Status {
	case StatusCompleted:
		s.Completed++
	case StatusFailed:
		s.Failed++
		s.FailedTxs = append(s.FailedTxs, tx)
	case StatusSkipped:
		s.Skipped++
	default:
		s.Pending++
	}
}
