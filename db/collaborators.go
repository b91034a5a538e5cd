package db

import "io"

// This file names the external collaborators spec.md §1 and §6 deliberately
// keep out of the database's scope: the dependency solver, archive parsing,
// compression/network fetch, checksum primitives, and script execution.
// The db package depends only on these narrow interfaces; concrete default
// adapters live in the sibling repo package (archive iteration, stream
// fetch, checksum) and in cmd/apk (script execution, solver invocation).

// StreamOpener opens a byte stream addressed by a URL or local path. It is
// the concrete realization of spec §1's external `open_stream(url)`
// collaborator. Database holds a single StreamOpener and uses it for both
// repository index fetches and package archive fetches (see database.go and
// install.go) because both are, at this boundary, just "give me bytes for
// this URL" -- what differs
// is whether the caller expects the bytes pre-decompressed (an index) or
// raw archive container bytes (a package).
type StreamOpener interface {
	Open(url string) (io.ReadCloser, error)
}

// ArchiveEntry is one entry's metadata as produced by an ArchiveIterator,
// matching the external `iterate_entries(stream) → (metadata,
// payload_stream)` collaborator named in spec §1.
type ArchiveEntry struct {
	// Name is the entry's path within the archive, exactly as stored
	// (e.g. "usr/bin/foo", ".INSTALL", "var/db/apk/foo/1.0/post-install").
	Name string
	// Mode holds the raw mode bits, including the type bits (S_IFDIR etc)
	// -- install.go does its own S_ISDIR test rather than relying on a
	// pre-classified entry type, matching how the source inspects modes.
	Mode uint32
	UID  uint32
	GID  uint32
	Size int64
	// Checksum is the entry's declared content digest, when the archive
	// format carries one (spec §4.G install_entry, "record the entry's
	// declared checksum in file.csum"). Zero when the format carries none.
	Checksum Checksum
}

// IsDir reports whether this entry describes a directory (S_ISDIR).
func (e ArchiveEntry) IsDir() bool { return e.Mode&0170000 == 0040000 }

// ArchiveIterator walks an archive stream entry by entry, invoking fn with
// each entry's metadata and a reader bounded to that entry's payload. It
// stops and returns fn's error if fn returns non-nil, or its own error on
// a malformed stream.
type ArchiveIterator interface {
	Iterate(stream io.Reader, fn func(ArchiveEntry, io.Reader) error) error
}

// RunningChecksum accumulates a content digest as bytes are written to it,
// matching spec §1's external `hash_init/update/finalize` primitives.
type RunningChecksum interface {
	io.Writer
	Sum() Checksum
}

// ChecksumFactory creates a fresh RunningChecksum, one per install/open_stream
// call (spec §4.G step 7, "obtaining the stream's computed checksum").
type ChecksumFactory interface {
	New() RunningChecksum
}

// Transition is one solver-produced change: install New (replacing Old, if
// set), or remove Old (if New is nil).
type Transition struct {
	Old *Package
	New *Package
}

// Solver resolves a world dependency set against the available package
// universe into a concrete transaction, matching spec §1's external
// `solve(world) → transaction` collaborator. The database only knows how
// to apply a transaction (via InstallPkg), never how to compute one.
type Solver interface {
	Solve(world []Dependency, available *Index[Checksum, *Package], installed []*Package) ([]Transition, error)
}

// ScriptRunner executes one maintainer script, matching the external
// "small process runner interface" called for by Design Note "Scripts
// invocation". root is the filesystem root the script should run relative
// to (spec §4.G step 1, "chdir to root" -- the runner, not the database,
// owns how that relative execution is achieved).
type ScriptRunner interface {
	Run(kind ScriptKind, script []byte, root string) (exitCode int, err error)
}
