package storage

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/reclass-go/reclass/log"
	"github.com/reclass-go/reclass/pkg/reclass"
)

// GitBackend checks out (and refreshes) a git repository into a local
// cache directory, then delegates to a FilesystemBackend rooted there
// (spec.md §6 storage API, §5 "for git-backed storage, a blocking
// flock on a per-repository lock file"; grounded on the original
// reclass.storage.yaml_git backend, reimplemented over the `git` CLI
// since no pack library provides git plumbing — see DESIGN.md).
type GitBackend struct {
	remote   string
	ref      string
	cacheDir string

	fs *FilesystemBackend
}

// NewGitBackend clones remote at ref into cacheDir (cloning if absent,
// fetching+resetting if present), then builds a FilesystemBackend over
// the checkout's nodesURI/classesURI subpaths.
func NewGitBackend(remote, ref, cacheDir, nodesURI, classesURI string, composeNodeName bool) (*GitBackend, error) {
	if ref == "" {
		ref = "master"
	}
	g := &GitBackend{remote: remote, ref: ref, cacheDir: cacheDir}
	if err := g.sync(); err != nil {
		return nil, err
	}
	fs, err := NewFilesystemBackend(cacheDir, nodesURI, classesURI, composeNodeName)
	if err != nil {
		return nil, err
	}
	g.fs = fs
	return g, nil
}

func (g *GitBackend) lockPath() string {
	return filepath.Join(filepath.Dir(g.cacheDir), "."+filepath.Base(g.cacheDir)+".lock")
}

// sync clones or fetches+resets the repository under a blocking flock
// so concurrent processes sharing a cache directory serialize their
// updates (spec.md §5).
func (g *GitBackend) sync() error {
	lockPath := g.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("preparing git cache lock dir: %w", err)
	}
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("opening git cache lock %s: %w", lockPath, err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("locking %s: %w", lockPath, err)
	}
	defer syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)

	if _, err := os.Stat(filepath.Join(g.cacheDir, ".git")); os.IsNotExist(err) {
		log.DEBUG("cloning %s (%s) into %s", g.remote, g.ref, g.cacheDir)
		return g.run("", "clone", "--branch", g.ref, g.remote, g.cacheDir)
	}

	log.DEBUG("refreshing %s at %s", g.remote, g.cacheDir)
	if err := g.run(g.cacheDir, "fetch", "origin", g.ref); err != nil {
		return err
	}
	return g.run(g.cacheDir, "reset", "--hard", "FETCH_HEAD")
}

func (g *GitBackend) run(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %v: %w: %s", args, err, out)
	}
	return nil
}

func (g *GitBackend) Name() string { return "git(" + g.remote + "@" + g.ref + ")" }

func (g *GitBackend) GetNode(name string, settings *reclass.Settings) (*reclass.Entity, error) {
	return g.fs.GetNode(name, settings)
}

func (g *GitBackend) GetClass(name, environment string, settings *reclass.Settings) (*reclass.Entity, error) {
	return g.fs.GetClass(name, environment, settings)
}

func (g *GitBackend) EnumerateNodes() ([]string, error) {
	return g.fs.EnumerateNodes()
}
