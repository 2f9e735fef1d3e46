package syncer

import (
	"context"
	"os"
)

// BlobReader loads photo binaries referenced by a local uri.
type BlobReader interface {
	ReadBlob(ctx context.Context, uri string) ([]byte, error)
}

// FileBlobReader treats uris as paths on the local filesystem.
type FileBlobReader struct{}

func (FileBlobReader) ReadBlob(_ context.Context, uri string) ([]byte, error) {
	return os.ReadFile(uri)
}
