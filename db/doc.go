// Package db implements the installed-state database and package install
// engine for a minimal Linux distribution's package manager.
//
// # Design Philosophy
//
// The package keeps the installed-package graph entirely in memory: package
// identities (Name), concrete versions (Package, content-addressed by
// checksum), the directories they populate (Directory, reference-counted),
// and the files they own (File, threaded into both its directory and its
// owning package without extra allocation). The graph is loaded from and
// persisted to a small set of line-oriented and binary text files under
// var/lib/apk (the "front database", or FDB) so that a process can open a
// root, reconcile it against a solved transaction, and close it again
// without ever holding more than one copy of the installed state.
//
// # Scope
//
// This package owns the data model, the FDB codec, and the install/remove
// state machine that drives filesystem mutation. It does not solve
// dependencies, decode archive containers, fetch anything over the network,
// or compute checksums -- those are external collaborators, described by
// the interfaces in collaborators.go and given default implementations in
// the sibling repo package.
package db
