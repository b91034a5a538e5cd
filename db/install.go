package db

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// busyboxName is grandfathered out of conflict detection: the base layout
// ships files that busybox itself will later overwrite once a dedicated
// package for them is installed (spec §4.G install_entry).
const busyboxName = "busybox"

// installContext carries the per-transition state threaded through
// installEntry (spec §4.G steps 5-6): which package is being installed,
// which script phase counts as "the" pre-phase for this transition, and a
// one-slot directory memo so a run of file entries sharing a directory
// (the common case -- archives are built directory-grouped) costs one
// DirectoryTable.Get instead of one per entry.
type installContext struct {
	db     *Database
	pkg    *Package
	script ScriptKind // ScriptPreInstall or ScriptPreUpgrade

	memoPath string
	memoDir  *Directory
	memoSet  bool
}

func (ctx *installContext) dirFor(path string) *Directory {
	if ctx.memoSet && ctx.memoPath == path {
		return ctx.memoDir
	}
	d := ctx.db.dirs.Get(path)
	ctx.memoPath, ctx.memoDir, ctx.memoSet = path, d, true
	return d
}

// InstallPkg drives one package install, upgrade, or removal (spec §4.G
// "install(old_pkg?, new_pkg?)"). Exactly one of oldPkg/newPkg may be nil,
// but not both.
func (db *Database) InstallPkg(oldPkg, newPkg *Package) error {
	if oldPkg != nil {
		if newPkg == nil {
			if err := db.runScript(oldPkg, ScriptPreDeinstall); err != nil {
				return err
			}
		}
		if err := db.purge(oldPkg, newPkg != nil); err != nil {
			return err
		}
		db.removeInstalled(oldPkg)
		if newPkg == nil {
			if err := db.runScript(oldPkg, ScriptPostDeinstall); err != nil {
				return err
			}
			db.emit(EventPackagePurged{Name: oldPkg.Name.Name, Version: oldPkg.Version})
			return nil
		}
	}

	stream, err := db.openPackageStream(newPkg)
	if err != nil {
		return err
	}

	ctx := &installContext{db: db, pkg: newPkg}
	if oldPkg == nil {
		ctx.script = ScriptPreInstall
	} else {
		ctx.script = ScriptPreUpgrade
	}

	sum := db.checksumFactory.New()
	tee := io.TeeReader(stream, sum)

	iterErr := db.archiveIterator.Iterate(tee, func(entry ArchiveEntry, payload io.Reader) error {
		return ctx.installEntry(entry, payload)
	})
	stream.Close()
	if iterErr != nil {
		if e, ok := iterErr.(*Error); ok {
			return e
		}
		return errf(KindIO, "install_pkg", iterErr, "installing %s-%s", newPkg.Name.Name, newPkg.Version)
	}

	newPkg.State = StateInstall
	db.installed = append(db.installed, newPkg)
	db.stats.Packages++

	computed := sum.Sum()
	if computed != newPkg.Checksum {
		db.emit(EventChecksumMismatch{
			Name:     newPkg.Name.Name,
			Declared: newPkg.Checksum.Hex(),
			Computed: computed.Hex(),
		})
	}

	var postKind ScriptKind
	if oldPkg == nil {
		postKind = ScriptPostInstall
	} else {
		postKind = ScriptPostUpgrade
	}
	postErr := db.runScript(newPkg, postKind)
	db.emit(EventPackageInstalled{Name: newPkg.Name.Name, Version: newPkg.Version, Upgraded: oldPkg != nil})
	return postErr
}

// openPackageStream resolves and opens the archive stream for pkg: its own
// Filename override if set, otherwise the synthesized
// "<repo[0].url>/<name>-<version>.apk" (spec §4.G step 4).
func (db *Database) openPackageStream(pkg *Package) (io.ReadCloser, error) {
	url := pkg.Filename
	if url == "" {
		if len(db.repositories) == 0 {
			return nil, errf(KindIO, "install_pkg", nil, "no repository configured to fetch %s-%s", pkg.Name.Name, pkg.Version)
		}
		url = db.repositories[0].URL + "/" + pkg.Name.Name + "-" + pkg.Version + ".apk"
	}
	stream, err := db.streamOpener.Open(url)
	if err != nil {
		return nil, errf(KindIO, "install_pkg", err, "opening package stream %s", url)
	}
	return stream, nil
}

// purge unlinks every file oldPkg owns, unref's their directories, and
// marks oldPkg AVAILABLE again (spec §4.G step 2). It deliberately leaves
// each File linked in its directory's by-directory list -- ownerless,
// findable by a later install_entry's get_or_create -- matching the
// source, which only unlinks the file from the package list on purge.
// When keepModified is set (an upgrade), a file in a protected directory
// whose on-disk content differs from its recorded checksum is left on disk,
// so the new version's payload is diverted to ".apk-new" beside it.
func (db *Database) purge(pkg *Package, keepModified bool) error {
	var files []*File
	pkg.eachOwnedFile(func(f *File) { files = append(files, f) })

	for _, f := range files {
		dir := f.Dir
		path := filepath.Join(db.root, dir.Dirname, f.Filename)
		keep := keepModified && dir.Flags&FlagProtected != 0 && f.HasChecksum() &&
			(&installContext{db: db}).localFileDiverges(path, f.Checksum)
		if !keep {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return errf(KindIO, "purge", err, "removing %s", path)
			}
		}
		f.Owner = nil
		pkg.ownedFiles.removeOwner(f)
		db.dirs.Unref(dir)
		db.stats.Files--
	}

	pkg.State = StateAvailable
	return nil
}

func (db *Database) removeInstalled(pkg *Package) {
	for i, p := range db.installed {
		if p == pkg {
			db.installed = append(db.installed[:i], db.installed[i+1:]...)
			db.stats.Packages--
			return
		}
	}
}

// runScript runs every script of the given kind attached to pkg, in
// attachment order, propagating the first nonzero exit or runner error.
func (db *Database) runScript(pkg *Package, kind ScriptKind) error {
	if db.scriptRunner == nil {
		return nil
	}
	for _, s := range pkg.ScriptsOfKind(kind) {
		code, err := db.scriptRunner.Run(kind, s.Data, db.root)
		db.emit(EventScriptRun{Package: pkg.Name.Name, Kind: kind.String(), ExitCode: code})
		if err != nil {
			return errf(KindScript, "run_script", err, "running %s script for %s", kind, pkg.Name.Name)
		}
		if code != 0 {
			return errf(KindScript, "run_script", nil, "%s script for %s exited %d", kind, pkg.Name.Name, code)
		}
	}
	return nil
}

// installEntry classifies and processes one archive entry (spec §4.G
// install_entry).
func (ctx *installContext) installEntry(entry ArchiveEntry, payload io.Reader) error {
	if entry.IsDir() {
		return ctx.installDirEntry(entry)
	}

	switch {
	case strings.HasPrefix(entry.Name, "."):
		if entry.Name == ".INSTALL" {
			return ctx.readScriptEntry(ScriptGeneric, entry, payload)
		}
		return nil
	case strings.HasPrefix(entry.Name, "var/db/apk/"):
		return ctx.installMetaEntry(entry, payload)
	default:
		return ctx.installFileEntry(entry, payload)
	}
}

// installDirEntry interns a directory entry's path and records its mode,
// uid, gid. It never refs the directory -- the ref arrives when a contained
// file is installed (spec §4.G install_entry, "do not ref").
func (ctx *installContext) installDirEntry(entry ArchiveEntry) error {
	path := strings.TrimSuffix(entry.Name, "/")
	dir := ctx.db.dirs.Get(path)
	dir.Mode = entry.Mode & 07777
	dir.UID = entry.UID
	dir.GID = entry.GID
	return nil
}

// installMetaEntry handles the APK 1.0 "var/db/apk/<name>/<version>/<kind>"
// script convention; unrecognized kinds are silently ignored (spec §4.G).
func (ctx *installContext) installMetaEntry(entry ArchiveEntry, payload io.Reader) error {
	rest := strings.TrimPrefix(entry.Name, "var/db/apk/")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 {
		return nil
	}
	kind := scriptType(parts[2])
	if kind == ScriptInvalid {
		return nil
	}
	return ctx.readScriptEntry(kind, entry, payload)
}

// readScriptEntry reads a script payload onto ctx.pkg and, if it is
// GENERIC or this transition's pre-phase, runs it immediately (spec §4.G
// "For any recognized script").
func (ctx *installContext) readScriptEntry(kind ScriptKind, entry ArchiveEntry, payload io.Reader) error {
	data := make([]byte, entry.Size)
	if _, err := io.ReadFull(payload, data); err != nil {
		return errf(KindIO, "install_entry", err, "reading script %s", entry.Name)
	}
	ctx.pkg.addScript(&Script{Kind: kind, Data: data})

	if kind != ScriptGeneric && kind != ctx.script {
		return nil
	}
	if ctx.db.scriptRunner == nil {
		return nil
	}
	code, err := ctx.db.scriptRunner.Run(kind, data, ctx.db.root)
	ctx.db.emit(EventScriptRun{Package: ctx.pkg.Name.Name, Kind: kind.String(), ExitCode: code})
	if err != nil {
		return errf(KindScript, "install_entry", err, "running %s script for %s", kind, ctx.pkg.Name.Name)
	}
	if code != 0 {
		return errf(KindScript, "install_entry", nil, "%s script for %s exited %d", kind, ctx.pkg.Name.Name, code)
	}
	return nil
}

// installFileEntry resolves the owning directory and File for a regular
// archive entry, detects ownership conflicts, applies protected-path
// diversion, and extracts the payload (spec §4.G "For a regular file
// entry").
func (ctx *installContext) installFileEntry(entry ArchiveEntry, payload io.Reader) error {
	dirPath, base := splitDirPath(entry.Name)
	dir := ctx.dirFor(dirPath)
	file := dir.getOrCreateFile(base)

	if file.Owner != nil && file.Owner.Name.Name != ctx.pkg.Name.Name && file.Owner.Name.Name != busyboxName {
		return errf(KindConflict, "install_entry", nil, "%s already owned by %s", entry.Name, file.Owner.Name.Name)
	}

	ctx.setOwner(file, ctx.pkg)

	if strings.HasPrefix(base, ".keep_") {
		return nil
	}

	destPath := filepath.Join(ctx.db.root, dir.Dirname, base)

	if dir.Flags&FlagProtected != 0 && file.HasChecksum() && ctx.localFileDiverges(destPath, file.Checksum) {
		ctx.db.emit(EventFileDiverted{Path: destPath})
		destPath += ".apk-new"
	}

	if err := writeEntryPayload(destPath, entry, payload); err != nil {
		return errf(KindIO, "install_entry", err, "writing %s", destPath)
	}

	file.setChecksum(entry.Checksum)
	return nil
}

// setOwner assigns pkg as file's owner, detaching any previous owner
// without touching the files counter, then refs file's directory (spec
// §4.G "set_owner"). The files counter is only incremented the first time
// a file gains an owner, matching invariant 3 (spec §8): reassigning an
// already-owned file (the busybox exception) leaves the count unchanged.
func (ctx *installContext) setOwner(file *File, pkg *Package) {
	wasOwned := file.Owner != nil
	if file.Owner != nil {
		file.Owner.ownedFiles.removeOwner(file)
	}
	file.Owner = pkg
	pkg.ownedFiles.pushOwner(file)
	ctx.db.dirs.Ref(file.Dir, true)
	if !wasOwned {
		ctx.db.stats.Files++
	}
}

// localFileDiverges reports whether the file currently on disk at path has
// drifted from stored (the previously recorded checksum): a missing file is
// not a divergence (spec §4.G "Protected-file diversion rationale").
func (ctx *installContext) localFileDiverges(path string, stored Checksum) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	sum := ctx.db.checksumFactory.New()
	sum.Write(data)
	return sum.Sum() != stored
}

// writeEntryPayload extracts entry's payload to path with its declared
// mode, uid, and gid.
func writeEntryPayload(path string, entry ArchiveEntry, payload io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(entry.Mode&07777))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chown(path, int(entry.UID), int(entry.GID))
}
