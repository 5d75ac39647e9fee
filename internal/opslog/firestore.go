package opslog

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreLog writes ops-log documents to a Firestore collection.
type FirestoreLog struct {
	client     *firestore.Client
	collection string
}

// NewFirestore connects to Firestore. The project id is detected from the
// credentials; when credentialsJSON is empty the application default
// credentials are used.
func NewFirestore(ctx context.Context, collection string, credentialsJSON string) (*FirestoreLog, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := firestore.NewClient(ctx, firestore.DetectProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreLog{client: client, collection: collection}, nil
}

// Merge sets fields on the document, creating it when needed.
func (f *FirestoreLog) Merge(ctx context.Context, id string, fields map[string]any) error {
	_, err := f.client.Collection(f.collection).Doc(id).Set(ctx, fields, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to merge %s/%s: %w", f.collection, id, err)
	}

	return nil
}

// Get returns the document fields.
func (f *FirestoreLog) Get(ctx context.Context, id string) (map[string]any, error) {
	snap, err := f.client.Collection(f.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, f.collection, id)
		}

		return nil, fmt.Errorf("failed to get %s/%s: %w", f.collection, id, err)
	}

	return snap.Data(), nil
}

// Close releases the underlying client.
func (f *FirestoreLog) Close() error {
	err := f.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close firestore client: %w", err)
	}

	return nil
}
