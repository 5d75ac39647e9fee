package opslog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsKVLog stores ops-log documents as JSON values in a NATS key-value
// bucket under the key "<collection>.<id>".
type NatsKVLog struct {
	kv         nats.KeyValue
	collection string
}

// NewNatsKV creates or binds to the key-value bucket.
func NewNatsKV(jetstreamContext nats.JetStreamContext, bucket, collection string) (*NatsKVLog, error) {
	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucket,
		Description: "Nightly brief ops log.",
		History:     1,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create key-value bucket '%s': %w", bucket, err)
		}

		kv, err = jetstreamContext.KeyValue(bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing key-value bucket '%s': %w", bucket, err)
		}
	}

	return &NatsKVLog{kv: kv, collection: collection}, nil
}

// Merge reads the current document, overlays fields and writes it back,
// guarded by the revision that was read.
func (n *NatsKVLog) Merge(_ context.Context, id string, fields map[string]any) error {
	key := n.key(id)

	doc := make(map[string]any)

	entry, err := n.kv.Get(key)

	switch {
	case errors.Is(err, nats.ErrKeyNotFound):
		entry = nil
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", key, err)
	default:
		unmarshalErr := json.Unmarshal(entry.Value(), &doc)
		if unmarshalErr != nil {
			return fmt.Errorf("failed to decode %s: %w", key, unmarshalErr)
		}
	}

	for field, value := range fields {
		doc[field] = value
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if entry == nil {
		_, err = n.kv.Create(key, data)
	} else {
		_, err = n.kv.Update(key, data, entry.Revision())
	}

	if err != nil {
		return fmt.Errorf("failed to merge %s: %w", key, err)
	}

	return nil
}

// Get returns the document fields.
func (n *NatsKVLog) Get(_ context.Context, id string) (map[string]any, error) {
	key := n.key(id)

	entry, err := n.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	doc := make(map[string]any)

	err = json.Unmarshal(entry.Value(), &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}

	return doc, nil
}

func (n *NatsKVLog) key(id string) string {
	return n.collection + "." + id
}
