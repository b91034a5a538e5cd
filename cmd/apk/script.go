package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/minilinux/apk/db"
)

// execScriptRunner is the default db.ScriptRunner: it spills a script's
// payload to a scratch file under root's tmp directory, marks it
// executable, and runs it with root as the working directory. This is the
// "small external process runner" the core only ever sees through
// run_script(kind, bytes, root) -> exit_code (spec §1); everything else
// about script execution is this file's concern, not db's.
type execScriptRunner struct{}

func (execScriptRunner) Run(kind db.ScriptKind, script []byte, root string) (int, error) {
	f, err := os.CreateTemp(filepath.Join(root, "tmp"), "apk-script-"+kind.String()+"-*")
	if err != nil {
		return -1, fmt.Errorf("staging %s script: %w", kind, err)
	}
	path := f.Name()
	defer os.Remove(path)

	_, werr := f.Write(script)
	cerr := f.Close()
	if werr != nil {
		return -1, fmt.Errorf("writing %s script: %w", kind, werr)
	}
	if cerr != nil {
		return -1, fmt.Errorf("closing %s script: %w", kind, cerr)
	}
	if err := os.Chmod(path, 0700); err != nil {
		return -1, fmt.Errorf("making %s script executable: %w", kind, err)
	}

	cmd := exec.Command(path)
	cmd.Dir = root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("running %s script: %w", kind, err)
	}
	return 0, nil
}
