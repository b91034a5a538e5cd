package db

import (
	"encoding/json"
	"fmt"
)

// Listener receives progress events from the façade and install engine.
// This is the database's entire logging surface (see SPEC_FULL.md §1):
// there is no logging library dependency, matching the teacher's own
// manifest/events.go pattern of small JSON-renderable event structs fed to
// a plain callback.
type Listener func(fmt.Stringer)

// NopListener discards every event. Passing it to WithListener behaves the
// same as setting no listener at all.
func NopListener(fmt.Stringer) {}

func jsonString(v any) string {
	b, _ := json.Marshal(map[string]any{
		fmt.Sprintf("%T", v): v,
	})
	return string(b)
}

// EventRepositoryAdded is emitted once a repository's index has been
// fetched and merged (spec §4.H add_repository).
type EventRepositoryAdded struct {
	URL  string `json:"url,omitempty"`
	Slot int    `json:"slot"`
}

func (e EventRepositoryAdded) String() string { return jsonString(e) }

// EventPackageInstalled is emitted after install_pkg successfully installs
// or upgrades a package (spec §4.G). Upgraded is true when this install
// replaced an existing installed version of the same name.
type EventPackageInstalled struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Upgraded bool   `json:"upgraded,omitempty"`
}

func (e EventPackageInstalled) String() string { return jsonString(e) }

// EventPackagePurged is emitted after install_pkg removes a package (spec
// §4.G step 2).
type EventPackagePurged struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

func (e EventPackagePurged) String() string { return jsonString(e) }

// EventChecksumMismatch is emitted when a downloaded archive's computed
// checksum disagrees with its declared one (spec §7 KindChecksum: "Warning
// only").
type EventChecksumMismatch struct {
	Name     string `json:"name,omitempty"`
	Declared string `json:"declared,omitempty"`
	Computed string `json:"computed,omitempty"`
}

func (e EventChecksumMismatch) String() string { return jsonString(e) }

// EventFileDiverted is emitted when a protected file's new payload is
// written to "<path>.apk-new" instead of overwriting the locally modified
// original (spec §4.G "Protected-file diversion").
type EventFileDiverted struct {
	Path string `json:"path,omitempty"`
}

func (e EventFileDiverted) String() string { return jsonString(e) }

// EventScriptRun is emitted after a maintainer script finishes, successfully
// or not.
type EventScriptRun struct {
	Package  string `json:"package,omitempty"`
	Kind     string `json:"kind,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (e EventScriptRun) String() string { return jsonString(e) }

// EventFileOperation is emitted once per canonical config file
// (world/installed/scripts) written during Database.WriteConfig, modeled on
// the teacher's deb.FileOperation / EventFileOperation pair.
type EventFileOperation struct {
	Path    string `json:"path,omitempty"`
	Created bool   `json:"created,omitempty"`
	Updated bool   `json:"updated,omitempty"`
}

func (e EventFileOperation) String() string { return jsonString(e) }

// EventCommitSummary is emitted once at the end of
// Database.RecalculateAndCommit, carrying the exact counters spec §4.H's
// "OK: <pkgs> packages, <dirs> dirs, <files> files" line formats.
type EventCommitSummary struct {
	Stats Stats `json:"stats"`
}

func (e EventCommitSummary) String() string {
	return fmt.Sprintf("OK: %d packages, %d dirs, %d files",
		e.Stats.Packages, e.Stats.Dirs, e.Stats.Files)
}
