package core

import (
	"bytes"
	"os"
	"path"
	"path/filepath"

	"github.com/oxhq/replx/internal/config"
	"github.com/oxhq/replx/internal/textenc"
)

// Reconcile inspects a reloaded journal against the live tree and
// repairs transactions that were IN_PROGRESS when the previous
// process died: operations that evidently succeeded become
// COMPLETED, everything else reverts to PENDING. RETRY_LATER
// transactions are rescheduled immediately (their in-memory backoff
// died with the process).
func Reconcile(j *Journal, cfg *config.Config) error {
	var recs []renameRecord
	changed := false

	for _, tx := range j.Transactions {
		switch tx.Status {
		case StatusCompleted:
			if tx.Type.IsRename() {
				recs = append(recs, renameStep(recs, tx))
			}
			continue
		case StatusRetryLater:
			tx.Status = StatusPending
			changed = true
			continue
		case StatusInProgress:
		default:
			continue
		}

		if applyInProgress(tx, recs, cfg) {
			tx.Status = StatusCompleted
			tx.Error = ""
			if tx.Type.IsRename() {
				recs = append(recs, renameStep(recs, tx))
			}
		} else {
			tx.Status = StatusPending
		}
		changed = true
	}

	if changed {
		return j.Checkpoint()
	}
	return nil
}

// applyInProgress decides whether an interrupted transaction's
// effect is already visible on disk.
func applyInProgress(tx *Transaction, recs []renameRecord, cfg *config.Config) bool {
	if tx.Type.IsRename() {
		cur := applyRenames(recs, tx.Path)
		dstRel := tx.NewBasename
		if d := path.Dir(cur); d != "." {
			dstRel = d + "/" + tx.NewBasename
		}
		src := filepath.Join(cfg.ScanRoot, filepath.FromSlash(cur))
		dst := filepath.Join(cfg.ScanRoot, filepath.FromSlash(dstRel))

		if _, err := os.Lstat(dst); err != nil {
			return false
		}
		if _, err := os.Lstat(src); err == nil && cur != dstRel {
			// Both names exist: the rename did not happen.
			return false
		}
		return true
	}

	if tx.Type == TxContentLine {
		cur := applyRenames(recs, tx.Path)
		raw, err := os.ReadFile(filepath.Join(cfg.ScanRoot, filepath.FromSlash(cur)))
		if err != nil {
			return false
		}
		line, ok := lineBytesAt(raw, tx)
		return ok && bytes.Equal(line, tx.NewLineBytes)
	}

	return false
}

// lineBytesAt extracts the encoded bytes of the transaction's line
// from the file's current content.
func lineBytesAt(raw []byte, tx *Transaction) ([]byte, bool) {
	codec, err := textenc.CodecFor(tx.Encoding)
	if err != nil {
		return nil, false
	}
	body := raw
	if len(tx.BOM) > 0 {
		if len(raw) < len(tx.BOM) {
			return nil, false
		}
		body = raw[len(tx.BOM):]
	}
	text, err := codec.Decode(body)
	if err != nil {
		return nil, false
	}
	lines := textenc.SplitLines(text)
	idx := tx.LineNumber - 1
	if idx < 0 || idx >= len(lines) {
		return nil, false
	}
	encoded, err := codec.Encode(lines[idx])
	if err != nil {
		return nil, false
	}
	return encoded, true
}
