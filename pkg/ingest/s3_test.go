package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.GetObjectInput
	body  string
	err   error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3Source_Open(t *testing.T) {
	client := &fakeS3{body: ingestTestCSV}
	src := NewS3SourceFromClient(client)

	rc, err := src.Open(context.Background(), "exports", "acme/daily.csv")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, ingestTestCSV, string(data))
	assert.Equal(t, "exports", *client.input.Bucket)
	assert.Equal(t, "acme/daily.csv", *client.input.Key)
}

func TestS3Source_OpenError(t *testing.T) {
	src := NewS3SourceFromClient(&fakeS3{err: errors.New("NoSuchKey")})

	_, err := src.Open(context.Background(), "exports", "missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://exports/missing.csv")
}

func TestNewS3Source(t *testing.T) {
	src, err := NewS3Source(context.Background(), S3Config{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	assert.NotNil(t, src.client)
}
