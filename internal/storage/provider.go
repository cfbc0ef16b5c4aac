package storage

import (
	"context"
	"io"
)

type Object struct {
	Name string
	Size int64
}

// Provider stores captured frame batches between submission and processing.
// Frames are written by the API when a check-in or enrollment is accepted,
// read by the worker that submits them to the verification service, and
// deleted once the submission succeeds.
type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)

	DeleteObjects(ctx context.Context, bucket, prefix string) error
}
