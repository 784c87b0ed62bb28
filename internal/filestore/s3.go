package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/linnemanlabs-api/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// PutObjectAPI is the slice of the S3 client used here.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores files as objects under bucket/prefix.
type S3 struct {
	client PutObjectAPI
	bucket string
	prefix string
}

var _ Store = (*S3)(nil)

func NewS3(client PutObjectAPI, bucket, prefix string) (*S3, error) {
	if client == nil {
		return nil, xerrors.New("s3 client is required")
	}
	if bucket == "" {
		return nil, xerrors.New("s3 bucket is required")
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3) Kind() string { return "s3" }

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Put buffers the body so the checksum and length are known up front.
// Callers bound size before calling.
func (s *S3) Put(ctx context.Context, name string, r io.Reader, size int64) (Object, error) {
	if !pathutil.IsSafeName(name) {
		return Object{}, xerrors.Wrapf(ErrUnsafeName, "%q", name)
	}

	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return Object{}, xerrors.Wrap(err, "read upload")
	}
	data := buf.Bytes()
	if size >= 0 && int64(len(data)) != size {
		return Object{}, xerrors.Wrapf(ErrShortWrite, "read %d of %d bytes", len(data), size)
	}

	sum := sha256.Sum256(data)
	ctype := http.DetectContentType(data)
	key := s.key(name)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(s.bucket),
		Key:            aws.String(key),
		Body:           bytes.NewReader(data),
		ContentLength:  aws.Int64(int64(len(data))),
		ContentType:    aws.String(ctype),
		ChecksumSHA256: aws.String(base64.StdEncoding.EncodeToString(sum[:])),
		Metadata:       map[string]string{"sha256": hex.EncodeToString(sum[:])},
	})
	if err != nil {
		return Object{}, xerrors.Wrapf(err, "put s3://%s/%s", s.bucket, key)
	}

	return Object{
		Name:        name,
		Location:    "s3://" + s.bucket + "/" + key,
		Size:        int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
		ContentType: ctype,
	}, nil
}
