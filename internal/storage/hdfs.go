package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/colinmarc/hdfs/v2"

	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

const defaultWebHDFSPort = "9870"

// HDFSOptions configures the HDFS filesystem.
type HDFSOptions struct {
	// Namenodes are used for refs without an authority (hdfs:///path).
	Namenodes []string
	User      string
	// WebHDFS overrides the REST endpoint; by default it is derived from the
	// ref's namenode host.
	WebHDFS string
}

// HDFS serves hdfs:// refs. One native client is kept per namenode authority.
type HDFS struct {
	opts HDFSOptions
	web  *WebHDFS
	log  *logger.Logger

	mu      sync.Mutex
	clients map[string]*hdfs.Client
}

var _ FileSystem = (*HDFS)(nil)

// NewHDFS returns an HDFS filesystem. Clients are dialled on first use.
func NewHDFS(opts HDFSOptions, web *WebHDFS, log *logger.Logger) *HDFS {
	return &HDFS{opts: opts, web: web, log: log, clients: make(map[string]*hdfs.Client)}
}

func (h *HDFS) client(ref string) (*hdfs.Client, string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, "", apperrors.NewIOError("parse", ref, err)
	}

	key := u.Host
	addresses := []string{u.Host}
	if key == "" {
		if len(h.opts.Namenodes) == 0 {
			return nil, "", apperrors.NewIOError("dial", ref, fmt.Errorf("no namenode in ref and none configured"))
		}
		key = strings.Join(h.opts.Namenodes, ",")
		addresses = h.opts.Namenodes
	}

	p := u.Path
	if p == "" {
		p = "/"
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[key]; ok {
		return c, p, nil
	}

	c, err := hdfs.NewClient(hdfs.ClientOptions{Addresses: addresses, User: h.opts.User})
	if err != nil {
		return nil, "", apperrors.NewIOError("dial", ref, err)
	}
	h.clients[key] = c
	h.log.WithFields(map[string]any{"namenode": key}).Debug("hdfs client connected")
	return c, p, nil
}

func (h *HDFS) Stat(_ context.Context, ref string) (FileInfo, error) {
	c, p, err := h.client(ref)
	if err != nil {
		return FileInfo{}, err
	}
	fi, err := c.Stat(p)
	if err != nil {
		return FileInfo{}, apperrors.NewIOError("stat", ref, err)
	}
	return FileInfo{Ref: ref, Size: fi.Size(), IsDir: fi.IsDir()}, nil
}

func (h *HDFS) List(_ context.Context, ref string) ([]FileInfo, error) {
	c, p, err := h.client(ref)
	if err != nil {
		return nil, err
	}
	entries, err := c.ReadDir(p)
	if err != nil {
		return nil, apperrors.NewIOError("list", ref, err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, fi := range entries {
		infos = append(infos, FileInfo{Ref: Join(ref, fi.Name()), Size: fi.Size(), IsDir: fi.IsDir()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Ref < infos[j].Ref })
	return infos, nil
}

func (h *HDFS) BlockLocations(ctx context.Context, info FileInfo) ([]BlockLocation, error) {
	if info.IsDir || info.Size == 0 {
		return nil, nil
	}
	base, err := h.webEndpoint(info.Ref)
	if err != nil {
		return nil, err
	}
	return h.web.BlockLocations(ctx, base, RefPath(info.Ref), info.Size)
}

func (h *HDFS) webEndpoint(ref string) (string, error) {
	if h.opts.WebHDFS != "" {
		return strings.TrimSuffix(h.opts.WebHDFS, "/"), nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", apperrors.NewLocalityError(ref, err)
	}
	host := u.Hostname()
	if host == "" && len(h.opts.Namenodes) > 0 {
		host, _, err = net.SplitHostPort(h.opts.Namenodes[0])
		if err != nil {
			host = h.opts.Namenodes[0]
		}
	}
	if host == "" {
		return "", apperrors.NewLocalityError(ref, fmt.Errorf("cannot derive webhdfs endpoint"))
	}
	return "http://" + net.JoinHostPort(host, defaultWebHDFSPort), nil
}

func (h *HDFS) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	c, p, err := h.client(ref)
	if err != nil {
		return nil, err
	}
	r, err := c.Open(p)
	if err != nil {
		return nil, apperrors.NewIOError("open", ref, err)
	}
	return r, nil
}

func (h *HDFS) Create(_ context.Context, ref string) (io.WriteCloser, error) {
	c, p, err := h.client(ref)
	if err != nil {
		return nil, err
	}
	if err := c.MkdirAll(path.Dir(p), 0o755); err != nil {
		return nil, apperrors.NewIOError("create", ref, err)
	}
	if err := removeIfExists(c, p); err != nil {
		return nil, apperrors.NewIOError("create", ref, err)
	}
	w, err := c.Create(p)
	if err != nil {
		return nil, apperrors.NewIOError("create", ref, err)
	}
	return w, nil
}

func (h *HDFS) CopyToLocal(_ context.Context, ref, local string) error {
	c, p, err := h.client(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return apperrors.NewIOError("copy-to-local", ref, err)
	}
	if err := c.CopyToLocal(p, local); err != nil {
		return apperrors.NewIOError("copy-to-local", ref, err)
	}
	return nil
}

func (h *HDFS) CopyFromLocal(_ context.Context, local, ref string) error {
	c, p, err := h.client(ref)
	if err != nil {
		return err
	}
	if err := c.MkdirAll(path.Dir(p), 0o755); err != nil {
		return apperrors.NewIOError("copy-from-local", ref, err)
	}
	if err := removeIfExists(c, p); err != nil {
		return apperrors.NewIOError("copy-from-local", ref, err)
	}
	if err := c.CopyToRemote(local, p); err != nil {
		return apperrors.NewIOError("copy-from-local", ref, err)
	}
	return nil
}

// Close releases every namenode connection.
func (h *HDFS) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for key, c := range h.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(h.clients, key)
	}
	return firstErr
}

func removeIfExists(c *hdfs.Client, p string) error {
	err := c.Remove(p)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
