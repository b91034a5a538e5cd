package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/minilinux/apk/db"
)

func newScriptRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "tmp"), 0755); err != nil {
		t.Fatalf("mkdir tmp: %v", err)
	}
	return root
}

func TestExecScriptRunnerRunsWithRootAsWorkingDirectory(t *testing.T) {
	root := newScriptRoot(t)

	script := []byte("#!/bin/sh\ntouch marker\n")
	code, err := execScriptRunner{}.Run(db.ScriptPostInstall, script, root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if _, err := os.Stat(filepath.Join(root, "marker")); err != nil {
		t.Errorf("expected the script to run with root as cwd: %v", err)
	}
}

func TestExecScriptRunnerPropagatesNonzeroExit(t *testing.T) {
	root := newScriptRoot(t)

	script := []byte("#!/bin/sh\nexit 7\n")
	code, err := execScriptRunner{}.Run(db.ScriptPreDeinstall, script, root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
}
