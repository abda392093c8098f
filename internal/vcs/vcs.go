// Package vcs captures source revision facts for the build signature
// and report. Running outside any repository is not an error.
package vcs

import (
	git "github.com/go-git/go-git/v5"
)

// Info describes the checkout a build reads from.
type Info struct {
	// Revision is the HEAD commit hash.
	Revision string
	// Dirty reports uncommitted work tree changes.
	Dirty bool
}

// Detect inspects the repository containing dir, walking parent
// directories to find the .git directory. ok is false when dir is not
// inside a work tree or the repository state cannot be read.
func Detect(dir string) (Info, bool) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Info{}, false
	}
	head, err := repo.Head()
	if err != nil {
		// Repository without commits yet; nothing usable to record.
		return Info{}, false
	}
	info := Info{Revision: head.Hash().String()}

	wt, err := repo.Worktree()
	if err != nil {
		return info, true
	}
	status, err := wt.Status()
	if err != nil {
		return info, true
	}
	info.Dirty = !status.IsClean()
	return info, true
}
