package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/JakeFAU/mediavid-client/internal/hash/sha256"
	"github.com/JakeFAU/mediavid-client/internal/media"
)

// Result describes a stored download.
type Result struct {
	Location string
	Filename string
	Bytes    int64
	// SHA256 is the hex digest of the stored bytes.
	SHA256 string
}

// SaveDownload streams dl into store under dir/<filename> and closes dl.
// The filename is derived from the response headers.
func SaveDownload(ctx context.Context, store media.BlobStore, dir string, dl *media.Download) (Result, error) {
	if store == nil {
		return Result{}, errors.New("blob store is required")
	}
	if dl == nil || dl.Body == nil {
		return Result{}, errors.New("download body is required")
	}
	defer func() { _ = dl.Close() }()

	name := dl.Filename
	if name == "" {
		name = media.FilenameFromHeaders(dl.Disposition, dl.ContentType)
	}
	key := name
	if dir = strings.Trim(dir, "/"); dir != "" {
		key = path.Join(dir, name)
	}
	counter := &countingReader{r: dl.Body}
	digest := sha256.NewReader(counter)
	loc, err := store.PutObject(ctx, key, dl.ContentType, digest)
	if err != nil {
		return Result{Filename: name, Bytes: counter.n}, fmt.Errorf("store %s: %w", key, err)
	}
	return Result{Location: loc, Filename: name, Bytes: counter.n, SHA256: digest.Sum()}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
