package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/alexisbeaulieu97/toolweave/internal/config"
	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// Resolver dispatches every FileSystem call to the filesystem registered for
// the ref's scheme. It is read-only once built.
type Resolver struct {
	byScheme map[string]FileSystem
}

var _ FileSystem = (*Resolver)(nil)

// NewResolver returns a resolver with only the local filesystem registered.
func NewResolver(local FileSystem) *Resolver {
	return &Resolver{byScheme: map[string]FileSystem{"file": local}}
}

// Register binds a filesystem to one or more schemes.
func (r *Resolver) Register(fs FileSystem, schemes ...string) *Resolver {
	for _, s := range schemes {
		r.byScheme[s] = fs
	}
	return r
}

// Schemes lists the registered schemes.
func (r *Resolver) Schemes() []string {
	out := make([]string, 0, len(r.byScheme))
	for s := range r.byScheme {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// For returns the filesystem serving ref.
func (r *Resolver) For(ref string) (FileSystem, error) {
	scheme := Scheme(ref)
	fs, ok := r.byScheme[scheme]
	if !ok {
		return nil, apperrors.NewIOError("resolve", ref, fmt.Errorf("unsupported scheme %q", scheme))
	}
	return fs, nil
}

// FromConfig builds the resolver for a run: local always, HDFS and blob storage
// when configured.
func FromConfig(cfg config.StorageConfig, log *logger.Logger) (*Resolver, error) {
	r := NewResolver(NewLocal(cfg.Local.BlockSize, cfg.Local.Hosts))

	web := NewWebHDFS(cfg.HDFS.User, cfg.HDFS.TimeoutDuration())
	r.Register(NewHDFS(HDFSOptions{Namenodes: cfg.HDFS.Namenodes, User: cfg.HDFS.User, WebHDFS: cfg.HDFS.WebHDFS}, web, log), "hdfs")

	conn := cfg.Azure.ConnectionString
	if cfg.Azure.ConnectionStringEnv != "" {
		conn = os.Getenv(cfg.Azure.ConnectionStringEnv)
	}
	if conn != "" {
		blob, err := NewBlob(conn)
		if err != nil {
			return nil, err
		}
		r.Register(blob, "wasb", "wasbs")
	}

	log.WithFields(map[string]any{"schemes": r.Schemes()}).Debug("storage resolver ready")
	return r, nil
}

// Close releases filesystems holding connections.
func (r *Resolver) Close() error {
	var firstErr error
	seen := make(map[FileSystem]struct{})
	for _, fs := range r.byScheme {
		if _, dup := seen[fs]; dup {
			continue
		}
		seen[fs] = struct{}{}
		if c, ok := fs.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Resolver) Stat(ctx context.Context, ref string) (FileInfo, error) {
	fs, err := r.For(ref)
	if err != nil {
		return FileInfo{}, err
	}
	return fs.Stat(ctx, ref)
}

func (r *Resolver) List(ctx context.Context, ref string) ([]FileInfo, error) {
	fs, err := r.For(ref)
	if err != nil {
		return nil, err
	}
	return fs.List(ctx, ref)
}

func (r *Resolver) BlockLocations(ctx context.Context, info FileInfo) ([]BlockLocation, error) {
	fs, err := r.For(info.Ref)
	if err != nil {
		return nil, err
	}
	return fs.BlockLocations(ctx, info)
}

func (r *Resolver) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	fs, err := r.For(ref)
	if err != nil {
		return nil, err
	}
	return fs.Open(ctx, ref)
}

func (r *Resolver) Create(ctx context.Context, ref string) (io.WriteCloser, error) {
	fs, err := r.For(ref)
	if err != nil {
		return nil, err
	}
	return fs.Create(ctx, ref)
}

func (r *Resolver) CopyToLocal(ctx context.Context, ref, local string) error {
	fs, err := r.For(ref)
	if err != nil {
		return err
	}
	return fs.CopyToLocal(ctx, ref, local)
}

func (r *Resolver) CopyFromLocal(ctx context.Context, local, ref string) error {
	fs, err := r.For(ref)
	if err != nil {
		return err
	}
	return fs.CopyFromLocal(ctx, local, ref)
}
