package storage

import (
	"context"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// Local serves plain paths and file:// refs. Block locations are synthesized:
// files are cut into BlockSize blocks and each block is placed on one of Hosts,
// rotating from a position derived from the file path.
type Local struct {
	BlockSize int64
	Hosts     []string
}

var _ FileSystem = (*Local)(nil)

// NewLocal returns a local filesystem; with no hosts the machine hostname is used.
func NewLocal(blockSize int64, hosts []string) *Local {
	if len(hosts) == 0 {
		name, err := os.Hostname()
		if err != nil || name == "" {
			name = "localhost"
		}
		hosts = []string{name}
	}
	if blockSize <= 0 {
		blockSize = 128 << 20
	}
	return &Local{BlockSize: blockSize, Hosts: hosts}
}

func localPath(ref string) string {
	if strings.HasPrefix(ref, "file://") {
		return filepath.FromSlash(RefPath(ref))
	}
	return ref
}

func (l *Local) Stat(_ context.Context, ref string) (FileInfo, error) {
	fi, err := os.Stat(localPath(ref))
	if err != nil {
		return FileInfo{}, apperrors.NewIOError("stat", ref, err)
	}
	return FileInfo{Ref: ref, Size: fi.Size(), IsDir: fi.IsDir()}, nil
}

func (l *Local) List(_ context.Context, ref string) ([]FileInfo, error) {
	entries, err := os.ReadDir(localPath(ref))
	if err != nil {
		return nil, apperrors.NewIOError("list", ref, err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		fi, err := entry.Info()
		if err != nil {
			return nil, apperrors.NewIOError("list", ref, err)
		}
		infos = append(infos, FileInfo{Ref: Join(ref, entry.Name()), Size: fi.Size(), IsDir: fi.IsDir()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Ref < infos[j].Ref })
	return infos, nil
}

func (l *Local) BlockLocations(_ context.Context, info FileInfo) ([]BlockLocation, error) {
	if info.IsDir || info.Size == 0 {
		return nil, nil
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(localPath(info.Ref)))
	first := int(h.Sum32() % uint32(len(l.Hosts)))

	var blocks []BlockLocation
	for i, offset := 0, int64(0); offset < info.Size; i, offset = i+1, offset+l.BlockSize {
		length := l.BlockSize
		if remaining := info.Size - offset; remaining < length {
			length = remaining
		}
		host := l.Hosts[(first+i)%len(l.Hosts)]
		blocks = append(blocks, BlockLocation{Offset: offset, Length: length, Hosts: []string{host}})
	}
	return blocks, nil
}

func (l *Local) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	f, err := os.Open(localPath(ref))
	if err != nil {
		return nil, apperrors.NewIOError("open", ref, err)
	}
	return f, nil
}

func (l *Local) Create(_ context.Context, ref string) (io.WriteCloser, error) {
	p := localPath(ref)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, apperrors.NewIOError("create", ref, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, apperrors.NewIOError("create", ref, err)
	}
	return f, nil
}

func (l *Local) CopyToLocal(_ context.Context, ref, local string) error {
	if err := copyFile(localPath(ref), local); err != nil {
		return apperrors.NewIOError("copy-to-local", ref, err)
	}
	return nil
}

func (l *Local) CopyFromLocal(_ context.Context, local, ref string) error {
	if err := copyFile(local, localPath(ref)); err != nil {
		return apperrors.NewIOError("copy-from-local", ref, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
