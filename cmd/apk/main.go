// Command apk drives the installed-state database and install engine
// against a root filesystem: creating one, registering repositories,
// declaring the desired world, and committing it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/minilinux/apk/db"
	"github.com/minilinux/apk/repo"
)

// arrayFlags collects a repeated flag into a slice, matching the teacher's
// own arrayFlags (cmd/deb-pm/main.go).
type arrayFlags []string

func (f *arrayFlags) String() string { return strings.Join(*f, ", ") }

func (f *arrayFlags) Set(value string) error {
	*f = append(*f, value)
	return nil
}

// kvFlags collects repeated "KEY=VALUE" flags into a map, matching the
// teacher's own kvFlags.
type kvFlags map[string]string

func (f *kvFlags) String() string {
	parts := make([]string, 0, len(*f))
	for k, v := range *f {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, ", ")
}

func (f *kvFlags) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid format, expected KEY=VALUE")
	}
	(*f)[parts[0]] = parts[1]
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "create":
		err = runCreate(os.Args[2:])
	case "add-repo":
		err = runAddRepo(os.Args[2:])
	case "add":
		err = runAdd(os.Args[2:])
	case "add-file":
		err = runAddFile(os.Args[2:])
	case "del":
		err = runDel(os.Args[2:])
	case "commit":
		err = runCommit(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func printUsage() {
	fmt.Println("Usage: apk <command> [flags]")
	fmt.Println("\nCommands:")
	fmt.Println("  create    Initialize a new root filesystem")
	fmt.Println("  add-repo  Register a package repository")
	fmt.Println("  add       Add packages to the desired world")
	fmt.Println("  add-file  Register a local .apk file as an available package")
	fmt.Println("  del       Remove packages from the desired world")
	fmt.Println("  commit    Resolve the world and apply the transaction")
	fmt.Println("  info      Print installed-state counters")
}

// commonFlags are shared by every subcommand that operates on an existing
// or new root.
type commonFlags struct {
	root      string
	config    string
	quiet     bool
	defines   kvFlags
	cacheFile string
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{defines: make(kvFlags)}
	fs.StringVar(&c.root, "root", "", "root filesystem path")
	fs.StringVar(&c.config, "config", "", "bootstrap YAML config path")
	fs.BoolVar(&c.quiet, "quiet", false, "suppress non-error output, print a dot per successful install")
	fs.Var(&c.defines, "define", "template variable for config rendering (KEY=VALUE)")
	fs.StringVar(&c.cacheFile, "cache-file", "", "path to a JSON fetch cache; empty disables caching")
	return c
}

func (c *commonFlags) listener() db.Listener {
	if c.quiet {
		return func(e fmt.Stringer) {
			if _, ok := e.(db.EventPackageInstalled); ok {
				fmt.Print(".")
			}
		}
	}
	return func(e fmt.Stringer) { fmt.Println(e.String()) }
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)

	if c.root == "" {
		return fmt.Errorf("--root is required")
	}
	cfg, err := loadConfig(c.config)
	if err != nil {
		return err
	}
	engine, err := newTemplateEngine(mergeDefines(cfg.Defines, c.defines))
	if err != nil {
		return err
	}
	baseline, err := cfg.baselineDependencies(engine)
	if err != nil {
		return err
	}
	repos, err := cfg.renderedRepositories(engine)
	if err != nil {
		return err
	}

	database, err := db.Create(c.root, baseline, db.WithListener(c.listener()))
	if err != nil {
		return err
	}
	database.Close()

	if len(repos) > 0 {
		if err := db.WriteRepositoriesFile(c.root, repos); err != nil {
			return err
		}
	}
	return nil
}

func runAddRepo(args []string) error {
	fs := flag.NewFlagSet("add-repo", flag.ExitOnError)
	c := bindCommon(fs)
	var url string
	fs.StringVar(&url, "url", "", "repository base URL")
	fs.Parse(args)

	if c.root == "" || url == "" {
		return fmt.Errorf("--root and --url are required")
	}

	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.AddRepository(url); err != nil {
		return err
	}
	return database.WriteConfig()
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)
	names := fs.Args()
	if c.root == "" || len(names) == 0 {
		return fmt.Errorf("--root and at least one package name are required")
	}

	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	world := database.World()
	for _, name := range names {
		if !containsDependency(world, name) {
			world = append(world, db.Dependency{Name: name})
		}
	}
	database.SetWorld(world)
	return database.WriteConfig()
}

func runAddFile(args []string) error {
	fs := flag.NewFlagSet("add-file", flag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)
	paths := fs.Args()
	if c.root == "" || len(paths) == 0 {
		return fmt.Errorf("--root and at least one .apk path are required")
	}

	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	for _, path := range paths {
		if _, err := database.AddPackageFile(path); err != nil {
			return err
		}
	}
	return database.WriteConfig()
}

func runDel(args []string) error {
	fs := flag.NewFlagSet("del", flag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)
	names := fs.Args()
	if c.root == "" || len(names) == 0 {
		return fmt.Errorf("--root and at least one package name are required")
	}

	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var world []db.Dependency
	for _, d := range database.World() {
		if !drop[d.Name] {
			world = append(world, d)
		}
	}
	database.SetWorld(world)
	return database.WriteConfig()
}

func runCommit(args []string) error {
	fs := flag.NewFlagSet("commit", flag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)
	if c.root == "" {
		return fmt.Errorf("--root is required")
	}

	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	return database.RecalculateAndCommit()
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)
	if c.root == "" {
		return fmt.Errorf("--root is required")
	}

	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	stats := database.Stats()
	fmt.Printf("OK: %d packages, %d dirs, %d files\n", stats.Packages, stats.Dirs, stats.Files)
	return nil
}

// openDatabase opens root with the default ecosystem collaborators wired
// in from the repo package, plus a naive world solver (spec §1's solver is
// out of core scope; see solver.go) and an os/exec-backed script runner
// (see script.go).
func openDatabase(c *commonFlags) (*db.Database, error) {
	var streamOpener db.StreamOpener = repo.NewDefaultStreamOpener()
	if c.cacheFile != "" {
		streamOpener = repo.CachingStreamOpener{Inner: streamOpener, Cache: repo.LoadCache(c.cacheFile)}
	}
	checksumFactory := repo.Sha256Factory{}
	archiveIterator := repo.TarArchiveIterator{}

	var database *db.Database
	opts := []db.Option{
		db.WithStreamOpener(streamOpener),
		db.WithChecksumFactory(checksumFactory),
		db.WithArchiveIterator(archiveIterator),
		db.WithScriptRunner(execScriptRunner{}),
		db.WithListener(c.listener()),
		db.WithSolver(newNaiveSolver(func(name string) (*db.Name, bool) {
			return database.LookupName(name)
		})),
	}

	opened, err := db.Open(c.root, "", opts...)
	if err != nil {
		return nil, err
	}
	database = opened
	return database, nil
}

func mergeDefines(configDefines map[string]string, flagDefines kvFlags) map[string]string {
	out := make(map[string]string, len(configDefines)+len(flagDefines))
	for k, v := range configDefines {
		out[k] = v
	}
	for k, v := range flagDefines {
		out[k] = v
	}
	return out
}

func containsDependency(deps []db.Dependency, name string) bool {
	for _, d := range deps {
		if d.Name == name {
			return true
		}
	}
	return false
}
