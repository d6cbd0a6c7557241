package blob_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inference-task-worker/internal/blob"
)

// newFakeS3 serves path-style GetObject requests from objects.
func newFakeS3(t *testing.T, objects map[string][]byte) *blob.S3Store {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  aws.AnonymousCredentials{},
	})
	return blob.NewS3StoreFromClient(client)
}

func TestS3Store_GetObject(t *testing.T) {
	store := newFakeS3(t, map[string][]byte{
		"/images/a.png": []byte("png-bytes"),
	})

	got, err := store.GetObject(context.Background(), "images", "a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), got)
}

func TestS3Store_GetObject_NotFound(t *testing.T) {
	store := newFakeS3(t, map[string][]byte{})

	_, err := store.GetObject(context.Background(), "images", "missing.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, blob.ErrNotFound)
	assert.Contains(t, err.Error(), "missing.png")
}
