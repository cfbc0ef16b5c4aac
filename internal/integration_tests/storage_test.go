package integrationtests

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"eduface-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameBucket = "test-frames"

func setupS3Provider(t *testing.T, ctx context.Context) *storage.S3Provider {
	t.Helper()

	endpoint := setupMinioContainer(t, ctx)

	provider, err := storage.NewS3Provider(&storage.S3ProviderConfig{
		S3EndpointURL:     endpoint,
		S3AccessKeyID:     minioUsername,
		S3SecretAccessKey: minioPassword,
		S3Region:          "us-east-1",
	})
	require.NoError(t, err)

	require.NoError(t, provider.CreateBucket(ctx, frameBucket))

	return provider
}

func TestS3ProviderPutGet(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupS3Provider(t, ctx)

	key := "checkins/abc/frame_000.jpg"
	content := []byte("frame bytes")

	require.NoError(t, provider.PutObject(ctx, frameBucket, key, bytes.NewReader(content)))

	data, err := provider.GetObject(ctx, frameBucket, key)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestS3ProviderCreateBucketIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupS3Provider(t, ctx)

	// setupS3Provider already created the bucket once
	require.NoError(t, provider.CreateBucket(ctx, frameBucket))
}

func TestS3ProviderListAndDelete(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupS3Provider(t, ctx)

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("checkins/burst-1/frame_%03d.jpg", i)
		require.NoError(t, provider.PutObject(ctx, frameBucket, key, bytes.NewReader([]byte("frame"))))
	}
	require.NoError(t, provider.PutObject(ctx, frameBucket, "checkins/burst-2/frame_000.jpg", bytes.NewReader([]byte("frame"))))

	objs, err := provider.ListObjects(ctx, frameBucket, "checkins/burst-1/")
	require.NoError(t, err)
	assert.Len(t, objs, 3)

	require.NoError(t, provider.DeleteObjects(ctx, frameBucket, "checkins/burst-1/"))

	objs, err = provider.ListObjects(ctx, frameBucket, "checkins/burst-1/")
	require.NoError(t, err)
	assert.Len(t, objs, 0)

	// the other burst is untouched
	objs, err = provider.ListObjects(ctx, frameBucket, "checkins/burst-2/")
	require.NoError(t, err)
	assert.Len(t, objs, 1)
}
