package core

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/oxhq/replx/internal/config"
)

// EntryType tags walked entries.
type EntryType string

const (
	EntryFile    EntryType = "FILE"
	EntryDir     EntryType = "DIR"
	EntrySymlink EntryType = "SYMLINK"
)

// Entry is one walked path. Path is slash-separated and relative to
// the scan root.
type Entry struct {
	Path string
	Type EntryType
	Size int64
}

// ignoreLayer is one compiled ignore file scoped to the subtree it
// was found in.
type ignoreLayer struct {
	prefix  string
	matcher *ignore.GitIgnore
}

// Walker traverses the scan root depth-first with sorted directory
// entries, so the emitted sequence is deterministic across runs and
// platforms. Directories are emitted after their contents.
type Walker struct {
	root   string
	cfg    *config.Config
	layers []ignoreLayer
}

// NewWalker builds a walker for the configured scan root. A custom
// ignore file, when configured, applies to the whole tree beneath
// any .gitignore layers discovered during the walk.
func NewWalker(cfg *config.Config) (*Walker, error) {
	w := &Walker{root: cfg.ScanRoot, cfg: cfg}

	if cfg.CustomIgnorePath != "" {
		m, err := ignore.CompileIgnoreFile(cfg.CustomIgnorePath)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling ignore file %s", cfg.CustomIgnorePath)
		}
		w.layers = append(w.layers, ignoreLayer{matcher: m})
	}

	return w, nil
}

// Walk calls fn for every entry under the scan root. The root itself
// is not emitted. Returning an error from fn aborts the walk.
func (w *Walker) Walk(ctx context.Context, fn func(Entry) error) error {
	return w.walkDir(ctx, "", w.layers, make(map[string]struct{}), fn)
}

func (w *Walker) walkDir(
	ctx context.Context,
	rel string,
	layers []ignoreLayer,
	visited map[string]struct{},
	fn func(Entry) error,
) error {
	abs := filepath.Join(w.root, filepath.FromSlash(rel))

	// Every directory is walked at most once, whatever mix of plain
	// paths and symlinks leads to it.
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		if _, seen := visited[real]; seen {
			return nil
		}
		visited[real] = struct{}{}
	}

	if w.cfg.UseGitignore {
		giPath := filepath.Join(abs, ".gitignore")
		if _, err := os.Stat(giPath); err == nil {
			if m, cerr := ignore.CompileIgnoreFile(giPath); cerr == nil {
				// Full slice expression keeps sibling directories from
				// seeing this subtree's layer.
				layers = append(layers[:len(layers):len(layers)],
					ignoreLayer{prefix: rel, matcher: m})
			}
		}
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return errors.Wrapf(err, "reading directory %s", abs)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, de := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := de.Name()
		childRel := joinRel(rel, name)
		isSymlink := de.Type()&os.ModeSymlink != 0

		if isSymlink {
			if w.cfg.IgnoreSymlinks {
				continue
			}
			if w.ignored(layers, childRel, false) {
				continue
			}
			if err := fn(Entry{Path: childRel, Type: EntrySymlink}); err != nil {
				return err
			}
			if err := w.descendSymlink(ctx, childRel, layers, visited, fn); err != nil {
				return err
			}
			continue
		}

		if de.IsDir() {
			if w.cfg.ExcludedDir(name) {
				continue
			}
			if w.ignored(layers, childRel, true) {
				continue
			}
			if err := w.walkDir(ctx, childRel, layers, visited, fn); err != nil {
				return err
			}
			if err := fn(Entry{Path: childRel, Type: EntryDir}); err != nil {
				return err
			}
			continue
		}

		if w.ignored(layers, childRel, false) {
			continue
		}
		if !w.globsAllow(childRel) {
			continue
		}
		info, ierr := de.Info()
		if ierr != nil {
			continue
		}
		if err := fn(Entry{Path: childRel, Type: EntryFile, Size: info.Size()}); err != nil {
			return err
		}
	}

	return nil
}

// descendSymlink follows a symlinked directory, guarding against
// cycles by remembering resolved targets.
func (w *Walker) descendSymlink(
	ctx context.Context,
	rel string,
	layers []ignoreLayer,
	visited map[string]struct{},
	fn func(Entry) error,
) error {
	abs := filepath.Join(w.root, filepath.FromSlash(rel))
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil // dangling link: name-scan only
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return nil
	}
	return w.walkDir(ctx, rel, layers, visited, fn)
}

// ignored checks the layered ignore matchers, innermost last. Paths
// are matched relative to the layer's own directory, the way git
// applies nested ignore files.
func (w *Walker) ignored(layers []ignoreLayer, rel string, isDir bool) bool {
	probe := rel
	if isDir {
		probe = rel + "/"
	}
	for _, l := range layers {
		sub := probe
		if l.prefix != "" {
			if !strings.HasPrefix(probe, l.prefix+"/") {
				continue
			}
			sub = probe[len(l.prefix)+1:]
		}
		if l.matcher.MatchesPath(sub) {
			return true
		}
	}
	return false
}

// globsAllow applies the include/exclude glob patterns to a file
// path. An empty include set admits everything.
func (w *Walker) globsAllow(rel string) bool {
	for _, pattern := range w.cfg.ExcludeGlobs {
		if matchGlob(pattern, rel) {
			return false
		}
	}
	if len(w.cfg.IncludeGlobs) == 0 {
		return true
	}
	for _, pattern := range w.cfg.IncludeGlobs {
		if matchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

// matchGlob tests pattern against the path and, for patterns without
// separators, against the basename.
func matchGlob(pattern, rel string) bool {
	if ok, err := doublestar.PathMatch(pattern, rel); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := doublestar.PathMatch(pattern, filepath.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}

func joinRel(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}
