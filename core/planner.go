package core

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oxhq/replx/internal/sidelog"
	"github.com/oxhq/replx/internal/util"
)

// stagePrefix names the unique temporary entries used to break
// rename cycles.
const stagePrefix = ".replx-stage-"

// Prompter lets interactive mode override the default collision
// policy. Returning true keeps the rename pending despite the
// collision.
type Prompter interface {
	ConfirmCollision(txType TxType, from, to string) bool
}

// Planner freezes the execution order: content edits first (each
// file's edits precede its rename), then file and symlink renames,
// then folder renames deepest-path-first so inner renames happen
// before outer ones. It detects target collisions and breaks rename
// cycles by staging through temporary names.
type Planner struct {
	root     string
	side     *sidelog.Logger
	prompter Prompter
}

// NewPlanner builds a planner rooted at the scan root. prompter may
// be nil, in which case the default SKIPPED policy always applies.
func NewPlanner(root string, side *sidelog.Logger, prompter Prompter) *Planner {
	return &Planner{root: root, side: side, prompter: prompter}
}

// Plan orders the scanned transactions and applies collision and
// cycle handling. The returned order is the journal order.
func (p *Planner) Plan(txs []*Transaction) []*Transaction {
	var content, fileRenames, folderRenames []*Transaction
	for _, tx := range txs {
		switch {
		case tx.Type == TxFolderName:
			folderRenames = append(folderRenames, tx)
		case tx.Type.IsRename():
			fileRenames = append(fileRenames, tx)
		default:
			content = append(content, tx)
		}
	}

	// Inner folders before outer ones; ties resolved by path for
	// deterministic output.
	sort.SliceStable(folderRenames, func(i, j int) bool {
		di := strings.Count(folderRenames[i].Path, "/")
		dj := strings.Count(folderRenames[j].Path, "/")
		if di != dj {
			return di > dj
		}
		return folderRenames[i].Path < folderRenames[j].Path
	})

	renames := append(append([]*Transaction{}, fileRenames...), folderRenames...)
	p.detectCollisions(renames)
	renames = p.orderRenames(renames)

	return append(content, renames...)
}

// normPath is the case-insensitive normalization used for collision
// decisions; the executor's existence check remains the ground truth
// on the actual filesystem.
func normPath(rel string) string {
	return strings.ToLower(path.Clean(rel))
}

// detectCollisions marks renames whose normalized target is claimed
// by another planned rename or by a live entry that is not being
// renamed out of the way. The first claimant wins; later ones are
// SKIPPED unless the operator overrides.
func (p *Planner) detectCollisions(renames []*Transaction) {
	sources := make(map[string]*Transaction, len(renames))
	for _, tx := range renames {
		sources[normPath(tx.Path)] = tx
	}

	claimed := make(map[string]*Transaction, len(renames))
	for _, tx := range renames {
		target := tx.NewPath()
		n := normPath(target)

		if prev, dup := claimed[n]; dup {
			tx.CollisionWith = target
			prev.CollisionWith = target
			p.recordCollision(tx, target)
			continue
		}

		collided := false
		for _, existing := range p.liveEntries(target) {
			existingNorm := normPath(existing)
			_, movingAway := sources[existingNorm]
			selfRename := existingNorm == normPath(tx.Path)
			if !movingAway && !selfRename {
				tx.CollisionWith = existing
				p.recordCollision(tx, existing)
				collided = true
				break
			}
		}
		if collided {
			continue
		}

		claimed[n] = tx
	}
}

// recordCollision applies the collision policy to tx and writes the
// side-channel record.
func (p *Planner) recordCollision(tx *Transaction, with string) {
	if p.side != nil {
		p.side.Collision(string(tx.Type), tx.Path, with)
	}
	if p.prompter != nil && p.prompter.ConfirmCollision(tx.Type, tx.Path, with) {
		return
	}
	tx.Status = StatusSkipped
	tx.Error = ErrCollisionAtExec.Error()
}

// liveEntries lists existing directory entries whose names match
// target case-insensitively, as actual relative paths.
func (p *Planner) liveEntries(target string) []string {
	dir := path.Dir(target)
	absDir := p.root
	if dir != "." {
		absDir = filepath.Join(p.root, filepath.FromSlash(dir))
	}
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil
	}
	relDir := dir
	if relDir == "." {
		relDir = ""
	}
	want := strings.ToLower(path.Base(target))
	var found []string
	for _, e := range entries {
		if strings.ToLower(e.Name()) == want {
			found = append(found, joinRel(relDir, e.Name()))
		}
	}
	return found
}

// orderRenames resolves dependencies between renames. A rename whose
// target is another rename's source must run after it, so chains
// (A→B, B→C) execute tail-first; cycles (A→B, B→A, …) are broken by
// staging the first member through a unique temporary name. Skipped
// renames keep their journal entries at the end.
//
// After collision detection each normalized target has at most one
// active claimant, so the rename graph is a disjoint union of simple
// chains and cycles.
func (p *Planner) orderRenames(renames []*Transaction) []*Transaction {
	var active, skipped []*Transaction
	for _, tx := range renames {
		if tx.Status == StatusSkipped {
			skipped = append(skipped, tx)
		} else {
			active = append(active, tx)
		}
	}

	byOld := make(map[string]*Transaction, len(active))
	for _, tx := range active {
		byOld[normPath(tx.Path)] = tx
	}

	// pred marks renames whose source is some other rename's target.
	pred := make(map[*Transaction]bool)
	for _, tx := range active {
		if next, ok := byOld[normPath(tx.NewPath())]; ok && next != tx {
			pred[next] = true
		}
	}

	emitted := make(map[*Transaction]bool)
	var out []*Transaction

	// Chains, tail-first.
	for _, tx := range active {
		if emitted[tx] || pred[tx] {
			continue
		}
		var chain []*Transaction
		cur := tx
		for cur != nil && !emitted[cur] {
			chain = append(chain, cur)
			emitted[cur] = true
			next, ok := byOld[normPath(cur.NewPath())]
			if !ok || next == cur {
				break
			}
			cur = next
		}
		for i := len(chain) - 1; i >= 0; i-- {
			out = append(out, chain[i])
		}
	}

	// Whatever remains is cyclic: every member has an incoming edge.
	for _, tx := range active {
		if emitted[tx] {
			continue
		}
		var cycle []*Transaction
		cur := tx
		for !emitted[cur] {
			cycle = append(cycle, cur)
			emitted[cur] = true
			cur = byOld[normPath(cur.NewPath())]
		}
		out = append(out, p.stageCycle(cycle)...)
	}

	return append(out, skipped...)
}

// stageCycle rewrites a rename cycle into a staged sequence: the
// first member moves to a temporary name, the remaining members
// execute in reverse chain order, and a final transaction moves the
// staged entry to its real target.
func (p *Planner) stageCycle(chain []*Transaction) []*Transaction {
	head := chain[0]
	stageBase := stagePrefix + util.ShortHash(head.ID)[:8]
	dir := path.Dir(head.Path)
	stagePath := stageBase
	if dir != "." {
		stagePath = dir + "/" + stageBase
	}

	out := []*Transaction{{
		ID:          NewRenameID(head.Type, head.Path, stageBase),
		Type:        head.Type,
		Path:        head.Path,
		NewBasename: stageBase,
		Status:      StatusPending,
	}}
	for i := len(chain) - 1; i >= 1; i-- {
		out = append(out, chain[i])
	}
	out = append(out, &Transaction{
		ID:          NewRenameID(head.Type, stagePath, head.NewBasename),
		Type:        head.Type,
		Path:        stagePath,
		NewBasename: head.NewBasename,
		Status:      StatusPending,
	})
	return out
}
