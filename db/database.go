package db

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
)

const (
	worldPath        = "var/lib/apk/world"
	installedPath    = "var/lib/apk/installed"
	scriptsPath      = "var/lib/apk/scripts"
	repositoriesPath = "etc/apk/repositories"
)

// defaultProtectedPaths seeds every freshly opened database with the one
// protected-path rule the base layout always carries: /etc is protected
// except for /etc/init.d (spec §4.H open, the literal
// "etc:-etc/init.d" seed list).
var defaultProtectedPaths = []string{"etc", "-etc/init.d"}

// Database is the installed-state façade: it owns every Name, Package,
// Directory, and File for one root filesystem, and drives install/upgrade/
// removal through the install engine (spec §3 "Database", §4.H).
//
// Database does not decode archives, fetch bytes, compute checksums, or run
// scripts itself -- it delegates those to the collaborators named in
// collaborators.go, defaulting to nothing. A nil script runner or listener
// makes the corresponding operation a no-op and a nil solver makes
// RecalculateAndCommit return an error; a nil stream opener, archive
// iterator or checksum factory is not checked, and the operations that use
// them panic.
type Database struct {
	root string

	names     *Index[string, *Name]
	available *Index[Checksum, *Package]
	dirs      *DirectoryTable

	installed    []*Package
	repositories []Repository
	world        []Dependency

	nextPkgID uint64
	stats     Stats

	streamOpener    StreamOpener
	archiveIterator ArchiveIterator
	checksumFactory ChecksumFactory
	scriptRunner    ScriptRunner
	solver          Solver

	listener Listener
}

// Option configures a Database at Create/Open time.
type Option func(*Database)

// WithStreamOpener sets the collaborator used to fetch repository indexes
// and package archives.
func WithStreamOpener(o StreamOpener) Option { return func(db *Database) { db.streamOpener = o } }

// WithArchiveIterator sets the collaborator used to walk package archives.
func WithArchiveIterator(it ArchiveIterator) Option {
	return func(db *Database) { db.archiveIterator = it }
}

// WithChecksumFactory sets the collaborator used to verify archive streams.
func WithChecksumFactory(f ChecksumFactory) Option {
	return func(db *Database) { db.checksumFactory = f }
}

// WithScriptRunner sets the collaborator used to execute maintainer
// scripts. Without one, scripts are recorded but never run.
func WithScriptRunner(r ScriptRunner) Option { return func(db *Database) { db.scriptRunner = r } }

// WithListener sets the callback that receives progress events. Without
// one, events are silently discarded.
func WithListener(l Listener) Option { return func(db *Database) { db.listener = l } }

// WithSolver sets the collaborator RecalculateAndCommit uses to turn World
// into a concrete transaction.
func WithSolver(s Solver) Option { return func(db *Database) { db.solver = s } }

func newDatabase(root string, opts []Option) *Database {
	db := &Database{
		root:      root,
		names:     NewIndex[string, *Name](1000),
		available: NewIndex[Checksum, *Package](4000),
	}
	db.dirs = NewDirectoryTable(root, 1000)
	db.dirs.SetProtectedPaths(defaultProtectedPaths)
	db.dirs.OnRefToOne = func(*Directory) { db.stats.Dirs++ }
	db.dirs.OnRefToZero = func(*Directory) { db.stats.Dirs-- }
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func (db *Database) emit(e fmt.Stringer) {
	if db.listener != nil {
		db.listener(e)
	}
}

// Create initializes a brand-new root filesystem: the baseline directory
// skeleton, a dev/null placeholder, and a seeded world file (spec §4.H
// "create(root)"). The dev/null placeholder is an empty regular file; no
// character device node is created.
func Create(root string, baseline []Dependency, opts ...Option) (*Database, error) {
	db := newDatabase(root, opts)

	for _, d := range []struct {
		path string
		mode os.FileMode
	}{
		{"tmp", 01777},
		{"dev", 0755},
		{"var/lib/apk", 0755},
		{"etc/apk", 0755},
	} {
		if err := os.MkdirAll(filepath.Join(root, d.path), d.mode); err != nil {
			return nil, errf(KindIO, "create", err, "creating %s", d.path)
		}
	}

	devNull := filepath.Join(root, "dev", "null")
	if _, err := os.Stat(devNull); os.IsNotExist(err) {
		// A char device node requires CAP_MKNOD that the builder driving
		// this exercise is not guaranteed to hold; a best-effort empty
		// regular file stands in so the path at least exists.
		if err := os.WriteFile(devNull, nil, 0666); err != nil {
			return nil, errf(KindIO, "create", err, "creating dev/null")
		}
	}

	db.world = append([]Dependency(nil), baseline...)
	if err := db.writeWorld(); err != nil {
		return nil, err
	}

	return db, nil
}

// Open loads an existing root filesystem's state: the world file, the
// installed FDB, the script store, and the configured repository list
// (spec §4.H "open(root)").
func Open(root string, repoOverride string, opts ...Option) (*Database, error) {
	db := newDatabase(root, opts)

	world, err := os.ReadFile(filepath.Join(root, worldPath))
	if err != nil && !os.IsNotExist(err) {
		return nil, errf(KindIO, "open", err, "reading %s", worldPath)
	}
	db.world = parseWorld(world)

	if f, err := os.Open(filepath.Join(root, installedPath)); err == nil {
		err := readFDB(f, db, true)
		f.Close()
		if err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, errf(KindIO, "open", err, "reading %s", installedPath)
	}

	if f, err := os.Open(filepath.Join(root, scriptsPath)); err == nil {
		err := readScripts(f, db.available)
		f.Close()
		if err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, errf(KindIO, "open", err, "reading %s", scriptsPath)
	}

	repoList, err := os.ReadFile(filepath.Join(root, repositoriesPath))
	if err != nil && !os.IsNotExist(err) {
		return nil, errf(KindIO, "open", err, "reading %s", repositoriesPath)
	}
	for _, line := range strings.Split(string(repoList), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := db.AddRepository(line); err != nil {
			return nil, err
		}
	}

	if repoOverride != "" {
		if err := db.AddRepository(repoOverride); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// WriteRepositoriesFile seeds root's repository list, one URL per line, so
// a later Open reconstructs the same repositories (the repoList read in
// Open above). Bootstrap callers use this to persist config-declared
// repositories at create time, before any index has ever been fetched.
func WriteRepositoriesFile(root string, urls []string) error {
	var buf bytes.Buffer
	for _, u := range urls {
		buf.WriteString(u)
		buf.WriteByte('\n')
	}
	if err := renameio.WriteFile(filepath.Join(root, repositoriesPath), buf.Bytes(), 0644); err != nil {
		return errf(KindIO, "write_config", err, "writing %s", repositoriesPath)
	}
	return nil
}

// AddRepository registers a new repository URL, fetching and merging its
// index (spec §4.H "add_repository(url)"). Slots are assigned
// sequentially; check-then-assign resolves Open Question 3 (spec §9):
// MAX_REPOS is enforced before the slot counter is touched.
func (db *Database) AddRepository(url string) error {
	if len(db.repositories) >= MaxRepos {
		return errf(KindResourceLimit, "add_repository", nil, "repository limit (%d) reached", MaxRepos)
	}
	slot := len(db.repositories)

	stream, err := db.streamOpener.Open(url + "/APK_INDEX.gz")
	if err != nil {
		return errf(KindIO, "add_repository", err, "opening index for %s", url)
	}
	defer stream.Close()

	if err := readFDB(stream, db, false, slot); err != nil {
		return err
	}

	db.repositories = append(db.repositories, Repository{URL: url, Slot: slot})
	db.emit(EventRepositoryAdded{URL: url, Slot: slot})
	return nil
}

// AddPackageFile registers a local .apk file as an available package (spec
// §6 CLI surface, "pkg_add_file(path)"). Unlike a repository-sourced
// package, a local file carries no FDB index record alongside it: its name
// and version are parsed from the "<name>-<version>.apk" filename
// convention, and its checksum is computed directly from the file rather
// than read from a C field.
func (db *Database) AddPackageFile(path string) (*Package, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".apk")
	i := strings.LastIndexByte(base, '-')
	if i < 0 {
		return nil, errf(KindParse, "pkg_add_file", nil, "cannot parse name-version from %q", path)
	}
	name, version := base[:i], base[i+1:]

	f, err := os.Open(path)
	if err != nil {
		return nil, errf(KindIO, "pkg_add_file", err, "opening %s", path)
	}
	defer f.Close()

	sum := db.checksumFactory.New()
	if _, err := io.Copy(sum, f); err != nil {
		return nil, errf(KindIO, "pkg_add_file", err, "hashing %s", path)
	}

	pkg := &Package{
		Name:     &Name{Name: name},
		Version:  version,
		Checksum: sum.Sum(),
		Filename: path,
	}
	return db.addPackage(pkg), nil
}

// RecalculateAndCommit asks the external solver to satisfy World, applies
// its transaction through InstallPkg, and persists the result (spec §4.H
// "recalculate_and_commit()"). The solver itself is out of scope (spec
// §1); this is the seam it drives through.
func (db *Database) RecalculateAndCommit() error {
	if db.solver == nil {
		return errf(KindIO, "recalculate_and_commit", nil, "no solver configured")
	}
	transaction, err := db.solver.Solve(db.world, db.available, db.installed)
	if err != nil {
		return errf(KindIO, "recalculate_and_commit", err, "solving world")
	}
	for _, t := range transaction {
		if err := db.InstallPkg(t.Old, t.New); err != nil {
			return err
		}
	}
	if err := db.WriteConfig(); err != nil {
		return err
	}
	db.emit(EventCommitSummary{Stats: db.Stats()})
	return nil
}

// WriteConfig serializes world, the installed FDB, and the script store to
// their canonical paths, each atomically-per-file at mode 0600 (spec §4.H
// "write_config()"). Atomic replacement uses renameio, matching the
// write-then-rename pattern other root-filesystem installers in this
// ecosystem use to avoid torn writes on crash.
func (db *Database) WriteConfig() error {
	if err := db.writeWorld(); err != nil {
		return err
	}

	var fdbBuf bytes.Buffer
	if err := writeFDB(&fdbBuf, db); err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(db.root, installedPath), fdbBuf.Bytes(), 0600); err != nil {
		return errf(KindIO, "write_config", err, "writing %s", installedPath)
	}
	db.emit(EventFileOperation{Path: installedPath, Updated: true})

	var scriptsBuf bytes.Buffer
	if err := writeScripts(&scriptsBuf, db.installed); err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(db.root, scriptsPath), scriptsBuf.Bytes(), 0600); err != nil {
		return errf(KindIO, "write_config", err, "writing %s", scriptsPath)
	}
	db.emit(EventFileOperation{Path: scriptsPath, Updated: true})

	return nil
}

func (db *Database) writeWorld() error {
	var buf bytes.Buffer
	for _, d := range db.world {
		buf.WriteString(formatDependency(d))
		buf.WriteByte('\n')
	}
	if err := renameio.WriteFile(filepath.Join(db.root, worldPath), buf.Bytes(), 0600); err != nil {
		return errf(KindIO, "write_config", err, "writing %s", worldPath)
	}
	db.emit(EventFileOperation{Path: worldPath, Updated: true})
	return nil
}

// World returns the current top-level dependency set. Mutating it is the
// CLI layer's responsibility (spec §9 Open Question 4): Database only
// reads and persists World, it never appends to it after Create's seed.
func (db *Database) World() []Dependency { return db.world }

// SetWorld replaces the top-level dependency set. Exposed for the CLI
// layer's add/del commands (spec §9 Open Question 4 resolution).
func (db *Database) SetWorld(world []Dependency) { db.world = append([]Dependency(nil), world...) }

// Repositories returns the currently configured repositories, in slot order.
func (db *Database) Repositories() []Repository { return db.repositories }

// Installed returns the currently installed packages, in installation order.
func (db *Database) Installed() []*Package { return db.installed }

// Stats returns a snapshot of the packages/dirs/files counters.
func (db *Database) Stats() Stats { return db.stats }

// LookupName returns the interned Name for a package name, if any.
func (db *Database) LookupName(name string) (*Name, bool) { return db.names.Get(name) }

// LookupPackage returns the package registered under checksum, if any.
func (db *Database) LookupPackage(sum Checksum) (*Package, bool) { return db.available.Get(sum) }

// SetProtectedPaths replaces the protected-path rule list applied to newly
// interned directories, beyond the built-in "etc:-etc/init.d" seed.
func (db *Database) SetProtectedPaths(rules []string) {
	db.dirs.SetProtectedPaths(append(append([]string(nil), defaultProtectedPaths...), rules...))
}

// addPackage registers pkg by checksum, collapsing onto an existing
// instance with the same checksum (spec §4.E "db.add_pkg"). It returns the
// canonical instance -- the caller must discard pkg if it differs from the
// return value.
func (db *Database) addPackage(pkg *Package) *Package {
	if existing, ok := db.available.Get(pkg.Checksum); ok {
		existing.Repos |= pkg.Repos
		return existing
	}
	pkg.ID = db.nextPkgID
	db.nextPkgID++
	db.available.Insert(pkg.Checksum, pkg)

	name, ok := db.names.Get(pkg.Name.Name)
	if !ok {
		name = &Name{Name: pkg.Name.Name}
		db.names.Insert(name.Name, name)
	}
	pkg.Name = name
	name.addVersion(pkg)
	return pkg
}

// Close releases the database's in-memory state. There is nothing to flush
// here -- WriteConfig, not Close, is what persists state (spec §4.H
// "close(): free all three maps ... Frees cascade through item
// destructors"; Go's GC is that cascade).
func (db *Database) Close() {
	db.names.Clear()
	db.available.Clear()
	db.dirs.index.Clear()
}

func parseWorld(data []byte) []Dependency {
	var deps []Dependency
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		deps = append(deps, parseDependency(line))
	}
	return deps
}
