// Package filestore persists uploaded files under names already produced by
// sanitize.Filename. Dir writes to a local directory, S3 to a bucket prefix.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

var (
	ErrUnsafeName = errors.New("unsafe file name")
	ErrExists     = errors.New("file already exists")
	ErrShortWrite = errors.New("size mismatch")
)

// Object describes a stored file.
type Object struct {
	Name        string
	Location    string
	Size        int64
	SHA256      string
	ContentType string
}

// Store is the storage collaborator of the upload route.
type Store interface {
	// Put stores exactly size bytes from r under name. A negative size
	// skips the length check.
	Put(ctx context.Context, name string, r io.Reader, size int64) (Object, error)
	Kind() string
}

func copyWithHash(dst io.Writer, src io.Reader) (written int64, hash string, err error) {
	h := sha256.New()
	written, err = io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return written, "", err
	}
	return written, hex.EncodeToString(h.Sum(nil)), nil
}
