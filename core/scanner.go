package core

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/oxhq/replx/internal/canon"
	"github.com/oxhq/replx/internal/config"
	"github.com/oxhq/replx/internal/match"
	"github.com/oxhq/replx/internal/rules"
	"github.com/oxhq/replx/internal/sidelog"
	"github.com/oxhq/replx/internal/textenc"
)

// Scanner turns walked entries into planned transactions. For
// identical inputs the emitted IDs, order and payloads are
// byte-equal across runs and platforms: the walk order is sorted,
// line numbers ascend, and IDs are content hashes.
type Scanner struct {
	cfg   *config.Config
	rules *rules.Set
	side  *sidelog.Logger
}

// NewScanner builds a scanner over the validated rule set.
func NewScanner(cfg *config.Config, set *rules.Set, side *sidelog.Logger) *Scanner {
	return &Scanner{cfg: cfg, rules: set, side: side}
}

// Scan walks the tree and returns the raw transaction sequence in
// scan order. The planner owns ordering and collision handling.
func (s *Scanner) Scan(ctx context.Context, w *Walker) ([]*Transaction, error) {
	var txs []*Transaction

	err := w.Walk(ctx, func(e Entry) error {
		if s.ownArtifact(e.Path) {
			return nil
		}

		switch e.Type {
		case EntryFile:
			fileTxs, err := s.scanFile(e)
			if err != nil {
				return err
			}
			txs = append(txs, fileTxs...)
		case EntryDir:
			if !s.cfg.SkipFolderRenaming {
				if tx := s.nameTransaction(e.Path, TxFolderName); tx != nil {
					txs = append(txs, tx)
				}
			}
		case EntrySymlink:
			if s.cfg.ProcessSymlinkNames {
				if tx := s.nameTransaction(e.Path, TxSymlinkName); tx != nil {
					txs = append(txs, tx)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// ownArtifact reports whether a path is one of replx's own files in
// the scan root, which must never be scanned or renamed.
func (s *Scanner) ownArtifact(rel string) bool {
	base := path.Base(rel)
	journalBase := filepath.Base(s.cfg.JournalPath)
	switch base {
	case journalBase, journalBase + ".lock",
		sidelog.CollisionLogName, sidelog.BinaryLogName:
		return true
	}
	return strings.Contains(base, tempSuffix)
}

// scanFile emits the content transactions for a file followed by its
// rename transaction, so per-file content edits always precede the
// rename in scan order.
func (s *Scanner) scanFile(e Entry) ([]*Transaction, error) {
	var txs []*Transaction

	if !s.cfg.SkipContent && s.cfg.ExtensionAllowed(e.Path) && e.Size <= s.cfg.MaxScanBytes {
		contentTxs, err := s.scanContent(e.Path)
		if err != nil {
			return nil, err
		}
		txs = append(txs, contentTxs...)
	}

	if !s.cfg.SkipFileRenaming {
		if tx := s.nameTransaction(e.Path, TxFileName); tx != nil {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

// nameTransaction builds a rename transaction when the basename's
// canonical form contains any rule.
func (s *Scanner) nameTransaction(rel string, txType TxType) *Transaction {
	base := path.Base(rel)
	if !s.rules.ContainsAny(canon.Canonicalize(base)) {
		return nil
	}
	newBase, ok := match.NewBasename(base, s.rules)
	if !ok || newBase == base {
		return nil
	}
	return &Transaction{
		ID:          NewRenameID(txType, rel, newBase),
		Type:        txType,
		Path:        rel,
		NewBasename: newBase,
		Status:      StatusPending,
	}
}

// scanContent reads the whole file (at most MaxScanBytes) into memory,
// decodes it under its detected encoding and splits it into lines; it
// does not stream. It emits one FILE_CONTENT_LINE transaction per
// matching line, carrying the whole line's original and rewritten
// bytes.
func (s *Scanner) scanContent(rel string) ([]*Transaction, error) {
	abs := filepath.Join(s.cfg.ScanRoot, filepath.FromSlash(rel))
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", abs)
	}

	prefix := raw
	if len(prefix) > textenc.SniffLimit {
		prefix = prefix[:textenc.SniffLimit]
	}
	desc := textenc.Sniff(prefix)

	if desc.Binary {
		return s.scanBinary(rel, raw), nil
	}

	codec, err := textenc.CodecFor(desc.Label)
	if err != nil {
		return s.scanBinary(rel, raw), nil
	}
	body := raw[len(desc.BOM):]
	if !textenc.RoundTrips(codec, body) {
		// Uncertain encoding must not corrupt on write.
		return s.scanBinary(rel, raw), nil
	}

	text, err := codec.Decode(body)
	if err != nil {
		return s.scanBinary(rel, raw), nil
	}

	var txs []*Transaction
	for i, line := range textenc.SplitLines(text) {
		res, ok := match.Line([]byte(line), s.rules)
		if !ok {
			continue
		}
		origBytes, err := codec.Encode(line)
		if err != nil {
			continue
		}
		newBytes, err := codec.Encode(string(res.NewBytes))
		if err != nil {
			continue
		}
		txs = append(txs, &Transaction{
			ID:                NewContentID(rel, i+1, origBytes),
			Type:              TxContentLine,
			Path:              rel,
			LineNumber:        i + 1,
			OriginalLineBytes: origBytes,
			NewLineBytes:      newBytes,
			Encoding:          desc.Label,
			BOM:               desc.BOM,
			NewlineStyle:      desc.Newline,
			Status:            StatusPending,
		})
	}

	if textenc.IsRTF(raw) {
		txs = append(txs, s.scanRTF(rel, raw, txs)...)
	}
	return txs, nil
}

// scanBinary records literal UTF-8 rule occurrences inside a binary
// file. The transaction is informational and created COMPLETED; it
// is never executed.
func (s *Scanner) scanBinary(rel string, raw []byte) []*Transaction {
	var hits []sidelog.BinaryHit
	for _, r := range s.rules.Rules() {
		needle := []byte(r.Find)
		for off := 0; ; {
			idx := bytes.Index(raw[off:], needle)
			if idx < 0 {
				break
			}
			hits = append(hits, sidelog.BinaryHit{
				Offset:  int64(off + idx),
				Literal: r.Find,
			})
			off += idx + len(needle)
		}
	}
	if len(hits) == 0 {
		return nil
	}

	if s.side != nil {
		s.side.Binary(rel, hits)
	}
	return []*Transaction{{
		ID:     NewRenameID(TxBinaryMatch, rel, ""),
		Type:   TxBinaryMatch,
		Path:   rel,
		Status: StatusCompleted,
	}}
}

// scanRTF reports matches that only appear once the RTF markup is
// unwrapped. Content writes still operate on the raw bytes, so these
// extra occurrences are informational.
func (s *Scanner) scanRTF(rel string, raw []byte, lineTxs []*Transaction) []*Transaction {
	extracted := textenc.UnwrapRTF(raw)
	if !s.rules.ContainsAny(canon.Canonicalize(extracted)) {
		return nil
	}
	if len(lineTxs) > 0 {
		// Raw-byte matches already cover the file.
		return nil
	}
	var hits []sidelog.BinaryHit
	for _, r := range s.rules.Rules() {
		if strings.Contains(canon.Canonicalize(extracted), r.Canon) {
			hits = append(hits, sidelog.BinaryHit{Offset: -1, Literal: r.Find})
		}
	}
	if s.side != nil {
		s.side.Binary(rel, hits)
	}
	return []*Transaction{{
		ID:     NewRenameID(TxBinaryMatch, rel, "rtf"),
		Type:   TxBinaryMatch,
		Path:   rel,
		Status: StatusCompleted,
	}}
}
