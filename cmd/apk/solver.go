package main

import (
	"fmt"

	"github.com/minilinux/apk/db"
)

// naiveSolver picks, for each world dependency, the name's most recently
// registered version (the last one appended to Name.Versions), ignoring
// the dependency's version constraint entirely. A real constraint-solving,
// transitive-closure dependency resolver is explicitly out of scope (spec
// §1, "the dependency solver ... is deliberately out of scope"); this is
// the minimal stand-in that lets the CLI drive install_pkg end to end.
type naiveSolver struct {
	lookupName func(string) (*db.Name, bool)
}

func newNaiveSolver(lookupName func(string) (*db.Name, bool)) *naiveSolver {
	return &naiveSolver{lookupName: lookupName}
}

func (s *naiveSolver) Solve(world []db.Dependency, available *db.Index[db.Checksum, *db.Package], installed []*db.Package) ([]db.Transition, error) {
	wanted := make(map[string]*db.Package, len(world))
	for _, dep := range world {
		name, ok := s.lookupName(dep.Name)
		if !ok || len(name.Versions) == 0 {
			return nil, fmt.Errorf("no package satisfies %q", dep.Name)
		}
		wanted[dep.Name] = name.Versions[len(name.Versions)-1]
	}

	byName := make(map[string]*db.Package, len(installed))
	for _, pkg := range installed {
		byName[pkg.Name.Name] = pkg
	}

	var transaction []db.Transition
	for name, pkg := range wanted {
		old := byName[name]
		if old != nil && old.Checksum == pkg.Checksum {
			continue
		}
		transaction = append(transaction, db.Transition{Old: old, New: pkg})
	}
	for name, old := range byName {
		if _, ok := wanted[name]; !ok {
			transaction = append(transaction, db.Transition{Old: old, New: nil})
		}
	}
	return transaction, nil
}
