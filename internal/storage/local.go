package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type LocalProvider struct {
	baseDir string
}

var _ Provider = &LocalProvider{}

func NewLocalProvider(dir string) (*LocalProvider, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	return &LocalProvider{baseDir: baseDir}, nil
}

func (p *LocalProvider) fullpath(bucket, key string) string {
	return filepath.Join(p.baseDir, bucket, key)
}

func (p *LocalProvider) CreateBucket(ctx context.Context, bucket string) error {
	return nil
}

func (p *LocalProvider) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := os.ReadFile(p.fullpath(bucket, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (p *LocalProvider) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	path := p.fullpath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s/%s: %w", bucket, key, err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s/%s: %w", bucket, key, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		return fmt.Errorf("failed to write file %s/%s: %w", bucket, key, err)
	}

	return nil
}

func (p *LocalProvider) ListObjects(ctx context.Context, bucket, dir string) ([]Object, error) {
	files, err := os.ReadDir(p.fullpath(bucket, dir))
	if err != nil {
		// A prefix with no objects is an empty list, same as S3.
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list files in %s/%s: %w", bucket, dir, err)
	}

	var objects []Object
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		info, err := file.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to get file info for %s/%s/%s: %w", bucket, dir, file.Name(), err)
		}

		objects = append(objects, Object{Name: filepath.Join(dir, file.Name()), Size: info.Size()})
	}

	return objects, nil
}

func (p *LocalProvider) DeleteObjects(ctx context.Context, bucket, prefix string) error {
	if err := os.RemoveAll(p.fullpath(bucket, prefix)); err != nil {
		return fmt.Errorf("failed to delete objects under %s/%s: %w", bucket, prefix, err)
	}
	return nil
}
