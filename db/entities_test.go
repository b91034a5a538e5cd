package db

import "testing"

func TestPackageStateString(t *testing.T) {
	if got := StateAvailable.String(); got != "available" {
		t.Errorf("StateAvailable.String() = %q, want available", got)
	}
	if got := StateInstall.String(); got != "install" {
		t.Errorf("StateInstall.String() = %q, want install", got)
	}
}

func TestScriptKindString(t *testing.T) {
	cases := map[ScriptKind]string{
		ScriptPreInstall:    "pre-install",
		ScriptPostInstall:   "post-install",
		ScriptPreUpgrade:    "pre-upgrade",
		ScriptPostUpgrade:   "post-upgrade",
		ScriptPreDeinstall:  "pre-deinstall",
		ScriptPostDeinstall: "post-deinstall",
		ScriptGeneric:       "generic",
		ScriptInvalid:       "invalid",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", kind, got, want)
		}
	}
}

func TestNameAddVersion(t *testing.T) {
	n := &Name{Name: "foo"}
	p1 := &Package{Name: n, Version: "1.0"}
	p2 := &Package{Name: n, Version: "2.0"}

	n.addVersion(p1)
	n.addVersion(p2)

	if len(n.Versions) != 2 {
		t.Fatalf("len(Versions) = %d, want 2", len(n.Versions))
	}
	if n.Versions[0] != p1 || n.Versions[1] != p2 {
		t.Errorf("Versions out of order: %+v", n.Versions)
	}
}

func TestDirectoryFindAndGetOrCreateFile(t *testing.T) {
	d := &Directory{Dirname: "usr/bin"}

	if d.findFile("missing") != nil {
		t.Errorf("findFile on empty directory must return nil")
	}

	f := d.getOrCreateFile("foo")
	if f == nil || f.Filename != "foo" || f.Dir != d {
		t.Fatalf("getOrCreateFile returned unexpected file: %+v", f)
	}
	if d.FileCount() != 1 {
		t.Errorf("FileCount() = %d, want 1", d.FileCount())
	}

	again := d.getOrCreateFile("foo")
	if again != f {
		t.Errorf("getOrCreateFile created a duplicate instead of returning the existing file")
	}
	if d.FileCount() != 1 {
		t.Errorf("FileCount() after repeat getOrCreateFile = %d, want 1", d.FileCount())
	}

	d.getOrCreateFile("bar")
	if d.FileCount() != 2 {
		t.Errorf("FileCount() after second distinct file = %d, want 2", d.FileCount())
	}
	if d.findFile("bar") == nil {
		t.Errorf("findFile(bar) returned nil after getOrCreateFile(bar)")
	}
}

func TestScriptSize(t *testing.T) {
	s := &Script{Kind: ScriptPostInstall, Data: []byte("#!/bin/sh\nexit 0\n")}
	if got := s.Size(); got != int64(len(s.Data)) {
		t.Errorf("Size() = %d, want %d", got, len(s.Data))
	}
}

func TestPackageScriptsOfKind(t *testing.T) {
	p := &Package{}
	p.addScript(&Script{Kind: ScriptPostInstall, Data: []byte("a")})
	p.addScript(&Script{Kind: ScriptGeneric, Data: []byte("b")})
	p.addScript(&Script{Kind: ScriptGeneric, Data: []byte("c")})

	if len(p.Scripts()) != 3 {
		t.Fatalf("Scripts() len = %d, want 3", len(p.Scripts()))
	}
	generic := p.ScriptsOfKind(ScriptGeneric)
	if len(generic) != 2 {
		t.Errorf("ScriptsOfKind(Generic) len = %d, want 2", len(generic))
	}
	postInstall := p.ScriptsOfKind(ScriptPostInstall)
	if len(postInstall) != 1 {
		t.Errorf("ScriptsOfKind(PostInstall) len = %d, want 1", len(postInstall))
	}
}

func TestFileChecksum(t *testing.T) {
	f := &File{Filename: "foo"}
	if f.HasChecksum() {
		t.Errorf("fresh file must not report HasChecksum")
	}

	var c Checksum
	c[0] = 0xAB
	f.setChecksum(c)
	if !f.HasChecksum() {
		t.Errorf("expected HasChecksum after setChecksum")
	}
	if f.Checksum != c {
		t.Errorf("Checksum = %x, want %x", f.Checksum, c)
	}
}

func TestRepositoryName(t *testing.T) {
	cases := map[string]string{
		"https://example.com/repo/main":  "main",
		"https://example.com/repo/main/": "main",
		"main":                           "main",
	}
	for url, want := range cases {
		r := Repository{URL: url}
		if got := r.Name(); got != want {
			t.Errorf("Repository{%q}.Name() = %q, want %q", url, got, want)
		}
	}
}
