package workspace

import (
	"os/exec"
	"strings"
)

// ExecGit implements GitRunner by calling git. Changes are computed
// against the merge-base with main, so they reflect what the current
// branch touched rather than uncommitted edits.
type ExecGit struct{}

func (g *ExecGit) FilesChanged(dir string) (string, error) {
	base, err := mergeBase(dir)
	if err != nil {
		// No main branch to diff against; fall back to HEAD.
		return runGit(dir, "diff", "--name-only", "HEAD")
	}
	return runGit(dir, "diff", "--name-only", base+"...HEAD")
}

// mergeBase finds the common ancestor between HEAD and main/master.
func mergeBase(dir string) (string, error) {
	base, err := runGit(dir, "merge-base", "main", "HEAD")
	if err != nil {
		base, err = runGit(dir, "merge-base", "master", "HEAD")
	}
	return base, err
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	return strings.TrimSpace(string(out)), err
}
