package r2

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	err   error
	calls int
	last  *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	f.last = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestClientPut(t *testing.T) {
	api := &fakePutter{}
	client := newClient(api, "media")

	err := client.Put(context.Background(), "20250101_120000_abcd1234_photo_1.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "media", aws.ToString(api.last.Bucket))
	assert.Equal(t, "20250101_120000_abcd1234_photo_1.jpg", aws.ToString(api.last.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(api.last.ContentType))
	assert.Equal(t, int64(4), aws.ToInt64(api.last.ContentLength))
	assert.Equal(t, []byte("jpeg"), api.body)
}

func TestClientPutOpensBreaker(t *testing.T) {
	api := &fakePutter{err: errors.New("503 service unavailable")}
	client := newClient(api, "media")

	for i := 0; i < 5; i++ {
		err := client.Put(context.Background(), "k", []byte("x"), "application/octet-stream")
		require.Error(t, err)
	}
	assert.Equal(t, 5, api.calls)

	err := client.Put(context.Background(), "k", []byte("x"), "application/octet-stream")
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, api.calls, "open breaker must not reach the store")
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Bucket: "media"})
	require.Error(t, err)

	client, err := NewClient(Config{
		Endpoint:        "https://acc.r2.cloudflarestorage.com",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "media",
	})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
