package objectstore

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore implements core.ObjectStore on a Google Cloud Storage bucket,
// which is also the backing store of Firebase Storage.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// NewGCS connects to Cloud Storage. When credentialsJSON is empty the
// application default credentials are used.
func NewGCS(ctx context.Context, bucketName string, credentialsJSON string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: client.Bucket(bucketName),
		name:   bucketName,
	}, nil
}

// Download retrieves an object from the bucket.
func (g *GCSStore) Download(ctx context.Context, key string) ([]byte, error) {
	reader, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open object '%s' in bucket '%s': %w", key, g.name, err)
	}

	data, readErr := io.ReadAll(reader)
	closeErr := reader.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload writes an object to the bucket with the given content type.
func (g *GCSStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	writer := g.bucket.Object(key).NewWriter(ctx)
	writer.ContentType = contentType

	_, writeErr := writer.Write(data)
	closeErr := writer.Close()

	if writeErr != nil {
		return fmt.Errorf("failed to write object '%s' to bucket '%s': %w", key, g.name, writeErr)
	}

	// The upload is only committed by Close.
	if closeErr != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, g.name, closeErr)
	}

	return nil
}

// Close releases the underlying client.
func (g *GCSStore) Close() error {
	err := g.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close storage client: %w", err)
	}

	return nil
}
