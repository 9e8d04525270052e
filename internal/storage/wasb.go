package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// Blob serves wasb:// and wasbs:// refs of the form
// wasb://container@account.blob.core.windows.net/path. Directories are blob
// name prefixes. Blob storage has no notion of locality, so BlockLocations is
// always empty.
type Blob struct {
	client *azblob.Client
}

var _ FileSystem = (*Blob)(nil)

// NewBlob creates a blob filesystem from a storage account connection string.
func NewBlob(connectionString string) (*Blob, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, apperrors.NewIOError("connect", "wasb", err)
	}
	return &Blob{client: client}, nil
}

type blobRef struct {
	container string
	name      string
}

func parseBlobRef(ref string) (blobRef, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return blobRef{}, err
	}
	if u.User == nil || u.User.Username() == "" {
		return blobRef{}, fmt.Errorf("missing container in %q", ref)
	}
	return blobRef{container: u.User.Username(), name: strings.TrimPrefix(u.Path, "/")}, nil
}

func (b *Blob) Stat(ctx context.Context, ref string) (FileInfo, error) {
	br, err := parseBlobRef(ref)
	if err != nil {
		return FileInfo{}, apperrors.NewIOError("stat", ref, err)
	}

	if br.name != "" {
		props, err := b.client.ServiceClient().NewContainerClient(br.container).NewBlobClient(br.name).GetProperties(ctx, nil)
		if err == nil {
			var size int64
			if props.ContentLength != nil {
				size = *props.ContentLength
			}
			return FileInfo{Ref: ref, Size: size}, nil
		}
		if !bloberror.HasCode(err, bloberror.BlobNotFound) {
			return FileInfo{}, apperrors.NewIOError("stat", ref, err)
		}
	}

	pager := b.client.NewListBlobsFlatPager(br.container, &azblob.ListBlobsFlatOptions{
		Prefix:     to.Ptr(dirPrefix(br.name)),
		MaxResults: to.Ptr(int32(1)),
	})
	if pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return FileInfo{}, apperrors.NewIOError("stat", ref, err)
		}
		if len(page.Segment.BlobItems) > 0 {
			return FileInfo{Ref: ref, IsDir: true}, nil
		}
	}
	return FileInfo{}, apperrors.NewIOError("stat", ref, fs.ErrNotExist)
}

// List returns every blob below the prefix as a file entry.
func (b *Blob) List(ctx context.Context, ref string) ([]FileInfo, error) {
	br, err := parseBlobRef(ref)
	if err != nil {
		return nil, apperrors.NewIOError("list", ref, err)
	}

	prefix := dirPrefix(br.name)
	var infos []FileInfo
	pager := b.client.NewListBlobsFlatPager(br.container, &azblob.ListBlobsFlatOptions{Prefix: to.Ptr(prefix)})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, apperrors.NewIOError("list", ref, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := FileInfo{Ref: Join(ref, strings.TrimPrefix(*item.Name, prefix))}
			if item.Properties != nil && item.Properties.ContentLength != nil {
				info.Size = *item.Properties.ContentLength
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func (b *Blob) BlockLocations(context.Context, FileInfo) ([]BlockLocation, error) {
	return nil, nil
}

func (b *Blob) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	br, err := parseBlobRef(ref)
	if err != nil {
		return nil, apperrors.NewIOError("open", ref, err)
	}
	resp, err := b.client.DownloadStream(ctx, br.container, br.name, nil)
	if err != nil {
		return nil, apperrors.NewIOError("open", ref, notExist(err))
	}
	return resp.Body, nil
}

// Create streams writes into a block blob upload that completes on Close.
func (b *Blob) Create(ctx context.Context, ref string) (io.WriteCloser, error) {
	br, err := parseBlobRef(ref)
	if err != nil {
		return nil, apperrors.NewIOError("create", ref, err)
	}

	pr, pw := io.Pipe()
	w := &blobWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := b.client.UploadStream(ctx, br.container, br.name, pr, nil)
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

type blobWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *blobWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *blobWriter) Close() error {
	_ = w.pw.Close()
	return <-w.done
}

func (b *Blob) CopyToLocal(ctx context.Context, ref, local string) error {
	br, err := parseBlobRef(ref)
	if err != nil {
		return apperrors.NewIOError("copy-to-local", ref, err)
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return apperrors.NewIOError("copy-to-local", ref, err)
	}
	f, err := os.Create(local)
	if err != nil {
		return apperrors.NewIOError("copy-to-local", ref, err)
	}
	defer f.Close()

	if _, err := b.client.DownloadFile(ctx, br.container, br.name, f, nil); err != nil {
		return apperrors.NewIOError("copy-to-local", ref, notExist(err))
	}
	return nil
}

func (b *Blob) CopyFromLocal(ctx context.Context, local, ref string) error {
	br, err := parseBlobRef(ref)
	if err != nil {
		return apperrors.NewIOError("copy-from-local", ref, err)
	}
	f, err := os.Open(local)
	if err != nil {
		return apperrors.NewIOError("copy-from-local", ref, err)
	}
	defer f.Close()

	if _, err := b.client.UploadFile(ctx, br.container, br.name, f, nil); err != nil {
		return apperrors.NewIOError("copy-from-local", ref, err)
	}
	return nil
}

func dirPrefix(name string) string {
	if name == "" || strings.HasSuffix(name, "/") {
		return name
	}
	return name + "/"
}

func notExist(err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return fmt.Errorf("%w: %v", fs.ErrNotExist, err)
	}
	return err
}
