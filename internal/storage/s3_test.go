package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>snapshots</Name>
  <Prefix>snapshots/</Prefix>
  <KeyCount>2</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents>
    <Key>snapshots/default/v2-v3-b.sz</Key>
    <Size>20</Size>
    <LastModified>2024-01-02T03:04:05.000Z</LastModified>
  </Contents>
  <Contents>
    <Key>snapshots/default/v1-v2-a.sz</Key>
    <Size>10</Size>
    <LastModified>2024-01-01T03:04:05.000Z</LastModified>
  </Contents>
</ListBucketResult>`

func newTestS3(t *testing.T, handler http.HandlerFunc) *S3Storage {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  aws.AnonymousCredentials{},
	})
	store := NewS3StorageWithClient(client, "snapshots", S3Config{})
	store.maxRetries = 0
	return store
}

func TestS3Storage_DefaultPartSize(t *testing.T) {
	store := NewS3StorageWithClient(s3.New(s3.Options{Region: "us-east-1"}), "b", S3Config{})
	assert.Equal(t, DefaultMultipartConfig().PartSize, store.config.MultipartConfig.PartSize)
}

func TestS3Storage_ListObjects(t *testing.T) {
	store := newTestS3(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "snapshots/", r.URL.Query().Get("prefix"))
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(listResponse))
	})

	objects, err := store.ListObjects(context.Background(), "snapshots/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "snapshots/default/v1-v2-a.sz", objects[0].Path)
	assert.Equal(t, int64(10), objects[0].Size)
	assert.Equal(t, time.Date(2024, 1, 1, 3, 4, 5, 0, time.UTC), objects[0].ModTime.UTC())
}

func TestS3Storage_ExistsMissing(t *testing.T) {
	store := newTestS3(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	exists, err := store.Exists(context.Background(), "snapshots/none.sz")
	require.NoError(t, err)
	assert.False(t, exists)
}
