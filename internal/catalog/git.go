package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// GitSource keeps a local clone of a remote toolspec repository.
type GitSource struct {
	URL         string
	Branch      string
	Depth       int
	Destination string
	// SubDir is the directory inside the clone holding the toolspecs.
	SubDir string
}

// Sync clones the repository into Destination, or fast-forwards an existing
// clone of the same remote. A directory holding anything else is replaced.
func (s *GitSource) Sync(ctx context.Context, log *logger.Logger) (string, error) {
	if s.URL == "" || s.Destination == "" {
		return "", apperrors.NewValidationError("repository.git", "url and cache directory are required", nil)
	}

	fields := map[string]any{"url": s.URL, "destination": s.Destination, "branch": s.Branch}

	repo, err := git.PlainOpen(s.Destination)
	switch {
	case err == nil && s.remoteMatches(repo):
		if err := s.pull(ctx, repo); err != nil {
			return "", err
		}
		log.WithFields(fields).Debug("toolspec repository updated")
		return s.specDir(), nil
	case err == nil, errors.Is(err, git.ErrRepositoryNotExists):
		if err := os.RemoveAll(s.Destination); err != nil {
			return "", apperrors.NewIOError("remove", s.Destination, err)
		}
	default:
		return "", apperrors.NewIOError("open", s.Destination, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Destination), 0o755); err != nil {
		return "", apperrors.NewIOError("mkdir", s.Destination, err)
	}
	if _, err := git.PlainCloneContext(ctx, s.Destination, false, s.cloneOptions()); err != nil {
		return "", apperrors.NewIOError("clone", s.URL, err)
	}

	log.WithFields(fields).Info("toolspec repository cloned")
	return s.specDir(), nil
}

// Load syncs the clone and loads its toolspecs.
func (s *GitSource) Load(ctx context.Context, log *logger.Logger) (*Repository, error) {
	dir, err := s.Sync(ctx, log)
	if err != nil {
		return nil, err
	}
	return NewRepository(dir, log)
}

func (s *GitSource) cloneOptions() *git.CloneOptions {
	opts := &git.CloneOptions{URL: s.URL}
	if s.Depth > 0 {
		opts.Depth = s.Depth
	}
	if s.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.Branch)
		opts.SingleBranch = true
	}
	return opts
}

func (s *GitSource) remoteMatches(repo *git.Repository) bool {
	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil || len(remote.Config().URLs) == 0 {
		return false
	}
	return remote.Config().URLs[0] == s.URL
}

func (s *GitSource) pull(ctx context.Context, repo *git.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		return apperrors.NewIOError("worktree", s.Destination, err)
	}

	opts := &git.PullOptions{RemoteName: git.DefaultRemoteName}
	if s.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.Branch)
		opts.SingleBranch = true
	}
	if s.Depth > 0 {
		opts.Depth = s.Depth
	}

	err = wt.PullContext(ctx, opts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return apperrors.NewIOError("pull", s.URL, fmt.Errorf("update %s: %w", s.Destination, err))
	}
	return nil
}

func (s *GitSource) specDir() string {
	if s.SubDir == "" {
		return s.Destination
	}
	return filepath.Join(s.Destination, s.SubDir)
}
