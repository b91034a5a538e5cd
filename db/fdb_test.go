package db

import (
	"bytes"
	"strings"
	"testing"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	return newDatabase(t.TempDir(), nil)
}

func TestFDBWriteReadRoundTrip(t *testing.T) {
	db := newTestDatabase(t)

	pkg := &Package{
		Name:         &Name{Name: "foo"},
		Version:      "1.2.3",
		Architecture: "x86_64",
		ArchiveSize:  100,
		InstallSize:  200,
		Description:  "a foo package",
		URL:          "https://example.com/foo",
		License:      "MIT",
		Dependencies: []Dependency{{Name: "bar", Constraint: ">=1.0"}},
	}
	pkg.Checksum[0] = 0x11
	pkg = db.addPackage(pkg)

	dir := db.dirs.Get("usr/bin")
	dir.UID, dir.GID, dir.Mode = 0, 0, 0755
	f := dir.getOrCreateFile("foo")
	f.Owner = pkg
	pkg.ownedFiles.pushOwner(f)
	var fileSum Checksum
	fileSum[0] = 0x22
	f.setChecksum(fileSum)

	db.installed = append(db.installed, pkg)

	var buf bytes.Buffer
	if err := writeFDB(&buf, db); err != nil {
		t.Fatalf("writeFDB: %v", err)
	}

	fresh := newTestDatabase(t)
	if err := readFDB(&buf, fresh, true); err != nil {
		t.Fatalf("readFDB: %v", err)
	}

	if len(fresh.installed) != 1 {
		t.Fatalf("installed len = %d, want 1", len(fresh.installed))
	}
	got := fresh.installed[0]
	if got.Name.Name != "foo" || got.Version != "1.2.3" || got.Architecture != "x86_64" {
		t.Errorf("package fields mismatch: %+v", got)
	}
	if got.ArchiveSize != 100 || got.InstallSize != 200 {
		t.Errorf("size fields mismatch: %+v", got)
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0].Name != "bar" || got.Dependencies[0].Constraint != ">=1.0" {
		t.Errorf("dependencies mismatch: %+v", got.Dependencies)
	}
	if got.Checksum != pkg.Checksum {
		t.Errorf("checksum mismatch: %x vs %x", got.Checksum, pkg.Checksum)
	}
	if got.State != StateInstall {
		t.Errorf("state = %v, want StateInstall", got.State)
	}
	if got.FileCount() != 1 {
		t.Fatalf("FileCount() = %d, want 1", got.FileCount())
	}

	gotDir, ok := fresh.dirs.Lookup("usr/bin")
	if !ok {
		t.Fatalf("usr/bin not interned on read")
	}
	if gotDir.Refs != 1 {
		t.Errorf("usr/bin Refs = %d, want 1 (invariant 1)", gotDir.Refs)
	}
	gotFile := gotDir.findFile("foo")
	if gotFile == nil || !gotFile.HasChecksum() || gotFile.Checksum != fileSum {
		t.Errorf("file mismatch: %+v", gotFile)
	}
}

func TestReadFDBDuplicateChecksumFatal(t *testing.T) {
	db := newTestDatabase(t)

	record := "P:foo\nV:1.0\nC:" + Checksum{0: 0xAA}.Hex() + "\n\n" +
		"P:foo\nV:1.0\nC:" + Checksum{0: 0xAA}.Hex() + "\n\n"

	err := readFDB(strings.NewReader(record), db, true)
	if err == nil {
		t.Fatal("expected an error for duplicate checksum in installed database")
	}
	var dbErr *Error
	if !asError(err, &dbErr) || dbErr.Kind != KindParse {
		t.Errorf("expected KindParse error, got %v", err)
	}
}

func TestReadFDBFieldOrderingViolations(t *testing.T) {
	cases := []string{
		"M:0:0:755\n\n",                // M before F
		"P:foo\nR:bin/foo\n\n",          // R before F
		"P:foo\nF:usr/bin\nZ:" + Checksum{0: 0xAA}.Hex() + "\n\n", // Z before R
	}
	for i, record := range cases {
		db := newTestDatabase(t)
		if err := readFDB(strings.NewReader(record), db, true); err == nil {
			t.Errorf("case %d: expected ordering-violation error for %q", i, record)
		}
	}
}

// asError is a small helper mirroring errors.As for this package's *Error
// type, kept local to the test file to avoid importing "errors" just for
// one assertion.
func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
