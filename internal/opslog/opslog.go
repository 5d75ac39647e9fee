// Package opslog provides the core.OpsLog implementations: Firestore,
// MongoDB and a NATS JetStream key-value bucket. Every backend merges the
// written fields into the existing document instead of replacing it.
package opslog

import "errors"

// ErrNotFound indicates that no ops-log document exists for the id.
var ErrNotFound = errors.New("ops-log document not found")
