package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	bucket, key, contentType string
	body                     []byte
	size                     int64
	err                      error
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	f.bucket, f.key, f.size, f.contentType = bucket, key, size, opts.ContentType
	f.body, _ = io.ReadAll(r)
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func TestStore_PutJSON(t *testing.T) {
	fp := &fakePutter{}
	s := newStore(fp, url.URL{Scheme: "http", Host: "minio:9000"}, "memtriage")

	got, err := s.PutJSON(context.Background(), "analyses/C.1/C.1_F1/20261018T000000Z.json", map[string]any{"risk_score": 80})
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/memtriage/analyses/C.1/C.1_F1/20261018T000000Z.json", got)
	assert.Equal(t, "memtriage", fp.bucket)
	assert.Equal(t, "application/json", fp.contentType)
	assert.Equal(t, int64(len(fp.body)), fp.size)

	var body map[string]any
	require.NoError(t, json.Unmarshal(fp.body, &body))
	assert.Equal(t, float64(80), body["risk_score"])
}

func TestStore_PutJSONError(t *testing.T) {
	denied := errors.New("access denied")
	s := newStore(&fakePutter{err: denied}, url.URL{Scheme: "https", Host: "minio:9000"}, "b")
	_, err := s.PutJSON(context.Background(), "k.json", struct{}{})
	assert.ErrorIs(t, err, denied)
	assert.EqualError(t, err, "put b/k.json: access denied")

	_, err = s.PutJSON(context.Background(), "k.json", make(chan int))
	assert.Error(t, err)
}

func TestStore_ObjectURLUsesEndpointScheme(t *testing.T) {
	s := newStore(&fakePutter{}, url.URL{Scheme: "https", Host: "s3.example.com", Path: "/ignored"}, "archive")

	got, err := s.PutJSON(context.Background(), "analyses/C.1/C.1_F1/x.json", struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.com/archive/analyses/C.1/C.1_F1/x.json", got)
}
