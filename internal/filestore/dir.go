package filestore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/keithlinneman/linnemanlabs-api/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// Dir stores files in a single flat directory.
type Dir struct {
	root string
}

var _ Store = (*Dir)(nil)

// NewDir creates root if needed.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, xerrors.New("upload directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, xerrors.Wrapf(err, "create upload directory %s", root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, xerrors.Wrap(err, "resolve upload directory")
	}
	return &Dir{root: abs}, nil
}

func (d *Dir) Kind() string { return "dir" }

func (d *Dir) Root() string { return d.root }

func (d *Dir) Put(ctx context.Context, name string, r io.Reader, size int64) (Object, error) {
	if !pathutil.IsSafeName(name) {
		return Object{}, xerrors.Wrapf(ErrUnsafeName, "%q", name)
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	path := filepath.Join(d.root, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if errors.Is(err, fs.ErrExist) {
		return Object{}, xerrors.Wrapf(ErrExists, "%s", name)
	}
	if err != nil {
		return Object{}, xerrors.Wrap(err, "create file")
	}

	// sniff the first chunk while it streams through
	sniff := &sniffWriter{}
	written, sum, err := copyWithHash(io.MultiWriter(f, sniff), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size >= 0 && written != size {
		err = xerrors.Wrapf(ErrShortWrite, "wrote %d of %d bytes", written, size)
	}
	if err != nil {
		_ = os.Remove(path)
		return Object{}, xerrors.Wrapf(err, "write %s", name)
	}

	return Object{
		Name:        name,
		Location:    path,
		Size:        written,
		SHA256:      sum,
		ContentType: http.DetectContentType(sniff.buf),
	}, nil
}

// sniffWriter keeps the first 512 bytes for content type detection.
type sniffWriter struct {
	buf []byte
}

func (s *sniffWriter) Write(p []byte) (int, error) {
	if room := 512 - len(s.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		s.buf = append(s.buf, p[:room]...)
	}
	return len(p), nil
}
