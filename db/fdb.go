package db

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Field letters (spec §4.E). P through C are index fields, shared between
// the installed database and repository indexes; F through Z are FDB-only
// and never appear in a repository index (spec §6 "Repository layout").
const (
	fieldName         = 'P'
	fieldVersion      = 'V'
	fieldArchitecture = 'A'
	fieldArchiveSize  = 'S'
	fieldInstallSize  = 'I'
	fieldDescription  = 'T'
	fieldURL          = 'U'
	fieldLicense      = 'L'
	fieldDepends      = 'D'
	fieldChecksum     = 'C'
	fieldDirOpen      = 'F'
	fieldDirMeta      = 'M'
	fieldFileEntry    = 'R'
	fieldFileChecksum = 'Z'
)

// readFDB parses one front-database stream into db (spec §4.E "Parser
// state machine"). When installed is true this is the canonical
// var/lib/apk/installed load and slot must be omitted; otherwise it is a
// repository index load and slot must carry that repository's assigned
// slot number.
func readFDB(r io.Reader, db *Database, installed bool, slot ...int) error {
	repo := -1
	if !installed {
		if len(slot) != 1 {
			panic("read_fdb: repository index load requires exactly one slot")
		}
		repo = slot[0]
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var pkg *Package
	var dir *Directory
	var file *File

	finish := func() error {
		if pkg == nil {
			return nil
		}
		if installed {
			pkg.State = StateInstall
		} else {
			pkg.Repos |= 1 << uint(repo)
		}
		canonical := db.addPackage(pkg)
		if installed && canonical != pkg {
			return errf(KindParse, "read_fdb", nil, "installed database load failed: duplicate checksum %s", pkg.Checksum.Hex())
		}
		if installed {
			db.installed = append(db.installed, canonical)
			db.stats.Packages++
		}
		pkg, dir, file = nil, nil, nil
		return nil
	}

	for sc.Scan() {
		line := sc.Text()
		if len(line) < 2 || line[1] != ':' {
			if err := finish(); err != nil {
				return err
			}
			continue
		}

		letter, value := line[0], line[2:]
		if pkg == nil {
			pkg = &Package{}
		}

		switch letter {
		case fieldName:
			pkg.Name = &Name{Name: value}
		case fieldVersion:
			pkg.Version = value
		case fieldArchitecture:
			pkg.Architecture = value
		case fieldArchiveSize:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return errf(KindParse, "read_fdb", err, "invalid S field %q", value)
			}
			pkg.ArchiveSize = n
		case fieldInstallSize:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return errf(KindParse, "read_fdb", err, "invalid I field %q", value)
			}
			pkg.InstallSize = n
		case fieldDescription:
			pkg.Description = value
		case fieldURL:
			pkg.URL = value
		case fieldLicense:
			pkg.License = value
		case fieldDepends:
			pkg.Dependencies = parseDependencyList(value)
		case fieldChecksum:
			sum, err := ParseChecksum(value)
			if err != nil {
				return errf(KindParse, "read_fdb", err, "invalid C field %q", value)
			}
			pkg.Checksum = sum

		case fieldDirOpen:
			if pkg.Name == nil || pkg.Name.Name == "" {
				return errf(KindParse, "read_fdb", nil, "F field before package name")
			}
			dir = db.dirs.Get(value)
			file = nil
		case fieldDirMeta:
			if dir == nil {
				return errf(KindParse, "read_fdb", nil, "M field before F")
			}
			parts := strings.SplitN(value, ":", 3)
			if len(parts) != 3 {
				return errf(KindParse, "read_fdb", nil, "malformed M field %q", value)
			}
			uid, err1 := strconv.ParseUint(parts[0], 10, 32)
			gid, err2 := strconv.ParseUint(parts[1], 10, 32)
			mode, err3 := strconv.ParseUint(parts[2], 8, 32)
			if err1 != nil || err2 != nil || err3 != nil {
				return errf(KindParse, "read_fdb", nil, "malformed M field %q", value)
			}
			dir.UID, dir.GID, dir.Mode = uint32(uid), uint32(gid), uint32(mode)
		case fieldFileEntry:
			if dir == nil {
				return errf(KindParse, "read_fdb", nil, "R field before F")
			}
			file = dir.getOrCreateFile(value)
			if file.Owner == nil {
				db.dirs.Ref(dir, false)
				db.stats.Files++
			}
			file.Owner = pkg
			pkg.ownedFiles.pushOwner(file)
		case fieldFileChecksum:
			if file == nil {
				return errf(KindParse, "read_fdb", nil, "Z field before R")
			}
			sum, err := ParseChecksum(value)
			if err != nil {
				return errf(KindParse, "read_fdb", err, "invalid Z field %q", value)
			}
			file.setChecksum(sum)

		default:
			return errf(KindParse, "read_fdb", nil, "unsupported FDB field %q", string(letter))
		}
	}
	if err := sc.Err(); err != nil {
		return errf(KindIO, "read_fdb", err, "reading FDB stream")
	}
	return finish()
}

// writeFDB serializes every installed package, in installed.packages
// order, as a sequence of blank-line-terminated records (spec §4.E
// "Writer").
func writeFDB(w io.Writer, db *Database) error {
	bw := bufio.NewWriter(w)
	for _, pkg := range db.installed {
		if err := writePackageRecord(bw, pkg); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writePackageRecord(w *bufio.Writer, pkg *Package) error {
	fmt.Fprintf(w, "P:%s\n", pkg.Name.Name)
	fmt.Fprintf(w, "V:%s\n", pkg.Version)
	if pkg.Architecture != "" {
		fmt.Fprintf(w, "A:%s\n", pkg.Architecture)
	}
	if pkg.ArchiveSize != 0 {
		fmt.Fprintf(w, "S:%d\n", pkg.ArchiveSize)
	}
	if pkg.InstallSize != 0 {
		fmt.Fprintf(w, "I:%d\n", pkg.InstallSize)
	}
	if pkg.Description != "" {
		fmt.Fprintf(w, "T:%s\n", pkg.Description)
	}
	if pkg.URL != "" {
		fmt.Fprintf(w, "U:%s\n", pkg.URL)
	}
	if pkg.License != "" {
		fmt.Fprintf(w, "L:%s\n", pkg.License)
	}
	if len(pkg.Dependencies) > 0 {
		fmt.Fprintf(w, "D:%s\n", formatDependencyList(pkg.Dependencies))
	}
	fmt.Fprintf(w, "C:%s\n", pkg.Checksum.Hex())

	var lastDir *Directory
	pkg.eachOwnedFile(func(f *File) {
		if f.Dir != lastDir {
			fmt.Fprintf(w, "F:%s\n", f.Dir.Dirname)
			fmt.Fprintf(w, "M:%d:%d:%o\n", f.Dir.UID, f.Dir.GID, f.Dir.Mode)
			lastDir = f.Dir
		}
		fmt.Fprintf(w, "R:%s\n", f.Filename)
		if f.HasChecksum() {
			fmt.Fprintf(w, "Z:%s\n", f.Checksum.Hex())
		}
	})

	_, err := w.WriteString("\n")
	return err
}

// depOperators are the constraint-introducing characters a dependency
// token may contain, e.g. "foo>=1.0" (spec §3 Dependency "{Name,
// constraint}", constraint syntax owned by the external solver).
const depOperators = "<>=~"

func formatDependency(d Dependency) string { return d.Name + d.Constraint }

func parseDependency(token string) Dependency {
	i := strings.IndexAny(token, depOperators)
	if i < 0 {
		return Dependency{Name: token}
	}
	return Dependency{Name: token[:i], Constraint: token[i:]}
}

func formatDependencyList(deps []Dependency) string {
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = formatDependency(d)
	}
	return strings.Join(parts, " ")
}

func parseDependencyList(value string) []Dependency {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil
	}
	deps := make([]Dependency, len(fields))
	for i, f := range fields {
		deps[i] = parseDependency(f)
	}
	return deps
}
