package db

import (
	"os"
	"path/filepath"
	"strings"
)

// DirectoryTable interns directory paths, resolves parents lazily, and
// maintains the reference-counted, protected-path-aware graph described in
// spec §4.D. It is owned by a single Database; directories it creates are
// owned by that Database too (Design Note: "directories are owned by the
// database, never by files or packages").
type DirectoryTable struct {
	root  string
	index *Index[string, *Directory]

	// protectedPaths is the ordered rule list from spec §4.D: plain
	// entries set FlagProtected on an exact dirname match, entries
	// prefixed "-" clear it. Order matters -- the last matching rule
	// wins (spec §8 invariant 8).
	protectedPaths []string

	// OnRefToOne and OnRefToZero are edge hooks fired exactly when Refs
	// transitions 0->1 or 1->0 (Design Note: "explicit counter with edge
	// hooks"). The façade uses them to keep Database.Stats().Dirs exact
	// without DirectoryTable needing to know about Database.
	OnRefToOne  func(*Directory)
	OnRefToZero func(*Directory)
}

// NewDirectoryTable creates a table rooted at root (an absolute filesystem
// path) with the given initial capacity hint for the path index.
func NewDirectoryTable(root string, capacity int) *DirectoryTable {
	return &DirectoryTable{
		root:  root,
		index: NewIndex[string, *Directory](capacity),
	}
}

// SetProtectedPaths replaces the ordered protected-path rule list. Rules
// already-applied to previously interned directories are NOT retroactively
// reapplied -- this mirrors spec §4.D, where the list is walked once, at
// Get time, against each newly-interned directory.
func (t *DirectoryTable) SetProtectedPaths(rules []string) {
	t.protectedPaths = append([]string(nil), rules...)
}

// Lookup returns the already-interned directory for path, if any, without
// creating it.
func (t *DirectoryTable) Lookup(path string) (*Directory, bool) {
	return t.index.Get(cleanDirPath(path))
}

// Get interns path, creating and linking it (and, lazily, its ancestors) if
// this is the first reference. path is stripped of one trailing slash
// before lookup (spec §4.D).
func (t *DirectoryTable) Get(path string) *Directory {
	path = cleanDirPath(path)
	if d, ok := t.index.Get(path); ok {
		return d
	}

	d := &Directory{Dirname: path}
	t.index.Insert(path, d)

	if path != "" {
		parentPath, _ := splitDirPath(path)
		d.Parent = t.Get(parentPath)
		d.Flags = d.Parent.Flags
	}

	t.applyProtectedPaths(d)
	return d
}

// cleanDirPath strips exactly one trailing slash, matching spec §4.D's "get"
// precisely (it is not a general path-cleaning routine: "a/b//" becomes
// "a/b/", not "a/b").
func cleanDirPath(path string) string {
	if len(path) > 0 && path[len(path)-1] == '/' {
		return path[:len(path)-1]
	}
	return path
}

// splitDirPath resolves path's parent by the last "/" split; the root
// directory is represented by the empty path and has no parent.
func splitDirPath(path string) (parent, base string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// applyProtectedPaths walks the ordered rule list, flipping FlagProtected
// on exact dirname matches. The final value is whichever rule matched
// last; no match leaves the inherited-from-parent value untouched (spec §8
// invariant 8).
func (t *DirectoryTable) applyProtectedPaths(d *Directory) {
	for _, rule := range t.protectedPaths {
		if clear := strings.HasPrefix(rule, "-"); clear {
			if rule[1:] == d.Dirname {
				d.Flags &^= FlagProtected
			}
		} else if rule == d.Dirname {
			d.Flags |= FlagProtected
		}
	}
}

// Ref increments dir's refcount, materializing it on disk (and recursively
// ref'ing its parent) the moment the count transitions from zero. Disk
// creation only happens when createOnDisk is true AND dir.Mode != 0 -- a
// directory entry read from an archive with mode 0 is a path component
// implied by a file beneath it, never created directly (spec §4.D).
func (t *DirectoryTable) Ref(dir *Directory, createOnDisk bool) {
	if dir.Refs == 0 {
		if dir.Parent != nil {
			t.Ref(dir.Parent, createOnDisk)
		}
		if createOnDisk && dir.Mode != 0 {
			abs := filepath.Join(t.root, dir.Dirname)
			if err := os.Mkdir(abs, os.FileMode(dir.Mode&07777)); err == nil || os.IsExist(err) {
				// best-effort: mkdir failures (including "already exists")
				// are not fatal, matching spec §4.D's "silently ignored".
				_ = os.Chown(abs, int(dir.UID), int(dir.GID))
			}
		}
		if t.OnRefToOne != nil {
			t.OnRefToOne(dir)
		}
	}
	dir.Refs++
}

// Unref decrements dir's refcount, best-effort removing it from disk (and
// recursively unref'ing its parent) the moment the count reaches zero. A
// non-empty directory simply fails rmdir, which is ignored (spec §4.D).
func (t *DirectoryTable) Unref(dir *Directory) {
	dir.Refs--
	if dir.Refs == 0 {
		if t.OnRefToZero != nil {
			t.OnRefToZero(dir)
		}
		_ = os.Remove(filepath.Join(t.root, dir.Dirname))
		if dir.Parent != nil {
			t.Unref(dir.Parent)
		}
	}
}

// ForEach calls fn once per interned directory. Iteration order is
// unspecified.
func (t *DirectoryTable) ForEach(fn func(*Directory)) {
	t.index.ForEach(func(_ string, d *Directory) { fn(d) })
}

// Len reports how many directories are currently interned (not how many
// have Refs > 0 -- see Database.Stats for the latter).
func (t *DirectoryTable) Len() int { return t.index.Len() }
