// Package core defines the interfaces the nightly brief job depends on.
package core

import (
	"context"
	"time"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// OpsLog stores one status document per id. Merge writes only the given
// fields and leaves any other field of an existing document untouched.
type OpsLog interface {
	Merge(ctx context.Context, id string, fields map[string]any) error
	Get(ctx context.Context, id string) (map[string]any, error)
}

// Notification describes a briefing that has been published.
type Notification struct {
	RunID     string
	DateKey   string
	AudioKey  string
	MetaKey   string
	ToneName  string
	Timestamp time.Time
}

// Notifier announces a published briefing to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
