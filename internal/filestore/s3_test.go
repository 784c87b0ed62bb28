package filestore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3_PutUploadsObject(t *testing.T) {
	fp := &fakePutter{}
	s, err := NewS3(fp, "bucket", "uploads")
	require.NoError(t, err)

	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("x", 100)
	obj, err := s.Put(context.Background(), "0a1b2c3d_pic.png", strings.NewReader(png), int64(len(png)))
	require.NoError(t, err)

	require.NotNil(t, fp.in)
	assert.Equal(t, "bucket", aws.ToString(fp.in.Bucket))
	assert.Equal(t, "uploads/0a1b2c3d_pic.png", aws.ToString(fp.in.Key))
	assert.Equal(t, int64(len(png)), aws.ToInt64(fp.in.ContentLength))
	assert.Equal(t, "image/png", aws.ToString(fp.in.ContentType))
	assert.NotEmpty(t, aws.ToString(fp.in.ChecksumSHA256))
	assert.Equal(t, png, string(fp.body))

	assert.Equal(t, "s3://bucket/uploads/0a1b2c3d_pic.png", obj.Location)
	assert.Equal(t, fp.in.Metadata["sha256"], obj.SHA256)
	assert.Len(t, obj.SHA256, 64)
}

func TestS3_NoPrefix(t *testing.T) {
	fp := &fakePutter{}
	s, err := NewS3(fp, "bucket", "")
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "f.pdf", strings.NewReader("x"), 1)
	require.NoError(t, err)
	assert.Equal(t, "f.pdf", aws.ToString(fp.in.Key))
}

func TestS3_PutRefusesUnsafeName(t *testing.T) {
	fp := &fakePutter{}
	s, _ := NewS3(fp, "bucket", "")

	_, err := s.Put(context.Background(), "../f.pdf", strings.NewReader("x"), 1)
	assert.True(t, errors.Is(err, ErrUnsafeName))
	assert.Nil(t, fp.in)
}

func TestS3_PutSizeMismatch(t *testing.T) {
	fp := &fakePutter{}
	s, _ := NewS3(fp, "bucket", "")

	_, err := s.Put(context.Background(), "f.pdf", strings.NewReader("abc"), 5)
	assert.True(t, errors.Is(err, ErrShortWrite))
	assert.Nil(t, fp.in)
}

func TestS3_PutPropagatesClientError(t *testing.T) {
	boom := errors.New("boom")
	s, _ := NewS3(&fakePutter{err: boom}, "bucket", "")

	_, err := s.Put(context.Background(), "f.pdf", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, boom)
}

func TestNewS3_Validation(t *testing.T) {
	_, err := NewS3(nil, "bucket", "")
	assert.Error(t, err)
	_, err = NewS3(&fakePutter{}, "", "")
	assert.Error(t, err)
}
