package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// Stager copies referenced files into a chain's scratch directory and copies
// produced outputs back.
type Stager struct {
	fs  FileSystem
	log *logger.Logger
}

// NewStager returns a stager over fs, typically a Resolver.
func NewStager(fs FileSystem, log *logger.Logger) *Stager {
	return &Stager{fs: fs, log: log}
}

// Localize copies ref into workDir and returns the local path, which mirrors
// the ref's path below workDir. Directories are copied recursively. A missing
// ref is an error when mustExist is set; otherwise only the parent directory
// is prepared so the tool can write there.
func (s *Stager) Localize(ctx context.Context, ref, workDir string, mustExist bool) (string, error) {
	local := LocalPath(workDir, ref)

	info, err := s.fs.Stat(ctx, ref)
	if err != nil {
		if !IsNotExist(err) || mustExist {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return "", apperrors.NewIOError("localize", ref, err)
		}
		return local, nil
	}

	if !info.IsDir {
		if err := s.fs.CopyToLocal(ctx, ref, local); err != nil {
			return "", err
		}
		s.log.WithFields(map[string]any{"ref": ref, "local": local, "bytes": info.Size}).Debug("localized file")
		return local, nil
	}

	files, err := Walk(ctx, s.fs, ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(local, 0o755); err != nil {
		return "", apperrors.NewIOError("localize", ref, err)
	}
	for _, f := range files {
		if err := s.fs.CopyToLocal(ctx, f.Ref, LocalPath(workDir, f.Ref)); err != nil {
			return "", err
		}
	}
	s.log.WithFields(map[string]any{"ref": ref, "local": local, "files": len(files)}).Debug("localized directory")
	return local, nil
}

// Delocalize copies local back to ref, recursively for directories. A local
// path the tool never produced is skipped.
func (s *Stager) Delocalize(ctx context.Context, local, ref string) error {
	fi, err := os.Stat(local)
	if os.IsNotExist(err) {
		s.log.WithFields(map[string]any{"ref": ref, "local": local}).Warn("output not produced, skipping")
		return nil
	}
	if err != nil {
		return apperrors.NewIOError("delocalize", ref, err)
	}

	if !fi.IsDir() {
		return s.fs.CopyFromLocal(ctx, local, ref)
	}

	err = filepath.WalkDir(local, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return ctx.Err()
		}
		rel, err := filepath.Rel(local, p)
		if err != nil {
			return err
		}
		return s.fs.CopyFromLocal(ctx, p, Join(ref, filepath.ToSlash(rel)))
	})
	if err != nil {
		return apperrors.NewIOError("delocalize", ref, err)
	}
	return nil
}

// LocalizeValue localizes every whitespace-separated ref in a parameter value
// and returns the value rewritten with local paths.
func (s *Stager) LocalizeValue(ctx context.Context, value, workDir string, mustExist bool) (string, error) {
	refs := strings.Fields(value)
	locals := make([]string, 0, len(refs))
	for _, ref := range refs {
		local, err := s.Localize(ctx, ref, workDir, mustExist)
		if err != nil {
			return "", err
		}
		locals = append(locals, local)
	}
	return strings.Join(locals, " "), nil
}

// DelocalizeValue copies back every ref of a parameter value localized into workDir.
func (s *Stager) DelocalizeValue(ctx context.Context, value, workDir string) error {
	for _, ref := range strings.Fields(value) {
		if err := s.Delocalize(ctx, LocalPath(workDir, ref), ref); err != nil {
			return err
		}
	}
	return nil
}
