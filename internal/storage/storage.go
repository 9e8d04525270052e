// Package storage abstracts the filesystems control lines reference: local
// paths, HDFS and Azure blob storage. Refs are full URIs (or plain local
// paths); each FileSystem strips its own scheme and authority.
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// FileInfo describes a file or directory behind a ref.
type FileInfo struct {
	Ref   string
	Size  int64
	IsDir bool
}

// BlockLocation is one block of a file and the hosts holding a replica of it.
type BlockLocation struct {
	Offset int64    `json:"offset"`
	Length int64    `json:"length"`
	Hosts  []string `json:"hosts"`
}

// Locator exposes the metadata the partitioner needs.
type Locator interface {
	Stat(ctx context.Context, ref string) (FileInfo, error)
	// List returns the entries directly below a directory ref.
	List(ctx context.Context, ref string) ([]FileInfo, error)
	BlockLocations(ctx context.Context, info FileInfo) ([]BlockLocation, error)
}

// FileSystem is a Locator that can also move data.
type FileSystem interface {
	Locator
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Create(ctx context.Context, ref string) (io.WriteCloser, error)
	CopyToLocal(ctx context.Context, ref, local string) error
	CopyFromLocal(ctx context.Context, local, ref string) error
}

// IsNotExist reports whether err means the ref does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Scheme returns the lower-cased URI scheme of ref, or "file" for plain paths.
func Scheme(ref string) string {
	i := strings.Index(ref, "://")
	if i <= 0 {
		return "file"
	}
	return strings.ToLower(ref[:i])
}

// RefPath returns the path component of ref.
func RefPath(ref string) string {
	if Scheme(ref) == "file" && !strings.HasPrefix(ref, "file://") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// Join appends name to a ref, keeping its scheme and authority.
func Join(ref, name string) string {
	if Scheme(ref) == "file" && !strings.HasPrefix(ref, "file://") {
		return filepath.Join(ref, name)
	}
	return strings.TrimSuffix(ref, "/") + "/" + strings.TrimPrefix(name, "/")
}

// LocalPath maps ref to a path inside workDir that mirrors the ref's path.
func LocalPath(workDir, ref string) string {
	p := path.Clean("/" + filepath.ToSlash(RefPath(ref)))
	return filepath.Join(workDir, filepath.FromSlash(p))
}

// Walk returns every regular file at or below ref.
func Walk(ctx context.Context, loc Locator, ref string) ([]FileInfo, error) {
	info, err := loc.Stat(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !info.IsDir {
		return []FileInfo{info}, nil
	}

	var files []FileInfo
	pending := []FileInfo{info}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := pending[0]
		pending = pending[1:]

		entries, err := loc.List(ctx, dir.Ref)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir {
				pending = append(pending, entry)
				continue
			}
			files = append(files, entry)
		}
	}
	return files, nil
}
