package main

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/nightly-brief/internal/config"
	"github.com/book-expert/nightly-brief/internal/core"
	"github.com/book-expert/nightly-brief/internal/notify"
	"github.com/book-expert/nightly-brief/internal/objectstore"
	"github.com/book-expert/nightly-brief/internal/opslog"
	"github.com/nats-io/nats.go"
)

// connections holds the clients of one process.
type connections struct {
	nats     *nats.Conn
	store    core.ObjectStore
	opsLog   core.OpsLog
	notifier core.Notifier
	closers  []func() error
	log      *logger.Logger
}

func (c *connections) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		err := c.closers[i]()
		if err != nil {
			c.log.Warn("Failed to close connection: %v", err)
		}
	}

	c.closers = nil
}

func dialNATS(url string) (*nats.Conn, error) {
	natsConnection, err := nats.Connect(url, nats.Name("nightly-brief"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return natsConnection, nil
}

// connect builds the backends selected by cfg. Any failure here is fatal:
// the job cannot proceed without a destination.
func connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*connections, error) {
	conns := &connections{log: log}

	err := conns.open(ctx, cfg)
	if err != nil {
		conns.close()

		return nil, err
	}

	return conns, nil
}

func (c *connections) open(ctx context.Context, cfg *config.Config) error {
	var (
		jetstreamContext nats.JetStreamContext
		err              error
	)

	if cfg.NATS.URL != "" {
		c.nats, err = dialNATS(cfg.NATS.URL)
		if err != nil {
			return err
		}

		c.closers = append(c.closers, func() error {
			c.nats.Close()

			return nil
		})

		jetstreamContext, err = c.nats.JetStream()
		if err != nil {
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}

		c.notifier, err = notify.NewNatsNotifier(c.nats, cfg.NATS.NotifySubject)
		if err != nil {
			return fmt.Errorf("failed to create notifier: %w", err)
		}
	}

	err = c.openStore(ctx, cfg, jetstreamContext)
	if err != nil {
		return err
	}

	return c.openOpsLog(ctx, cfg, jetstreamContext)
}

func (c *connections) openStore(ctx context.Context, cfg *config.Config, jetstreamContext nats.JetStreamContext) error {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		store, err := objectstore.NewS3(ctx, cfg.Storage.Bucket, cfg.Storage.AWSRegion)
		if err != nil {
			return err
		}

		c.store = store
	case config.StorageNATS:
		store, err := objectstore.NewNats(jetstreamContext, cfg.Storage.Bucket)
		if err != nil {
			return err
		}

		c.store = store
	default:
		store, err := objectstore.NewGCS(ctx, cfg.Storage.Bucket, cfg.CredentialsJSON)
		if err != nil {
			return err
		}

		c.store = store
		c.closers = append(c.closers, store.Close)
	}

	c.log.Info("Object store ready: %s bucket %s", cfg.Storage.Backend, cfg.Storage.Bucket)

	return nil
}

func (c *connections) openOpsLog(ctx context.Context, cfg *config.Config, jetstreamContext nats.JetStreamContext) error {
	switch cfg.OpsLog.Backend {
	case config.OpsLogMongo:
		mongoLog, err := opslog.NewMongo(ctx, cfg.OpsLog.MongoURI, cfg.OpsLog.MongoDB, cfg.OpsLog.Collection)
		if err != nil {
			return err
		}

		c.opsLog = mongoLog
		c.closers = append(c.closers, func() error {
			return mongoLog.Close(context.Background())
		})
	case config.OpsLogNATS:
		kvLog, err := opslog.NewNatsKV(jetstreamContext, cfg.OpsLog.KVBucket, cfg.OpsLog.Collection)
		if err != nil {
			return err
		}

		c.opsLog = kvLog
	default:
		firestoreLog, err := opslog.NewFirestore(ctx, cfg.OpsLog.Collection, cfg.CredentialsJSON)
		if err != nil {
			return err
		}

		c.opsLog = firestoreLog
		c.closers = append(c.closers, firestoreLog.Close)
	}

	c.log.Info("Ops log ready: %s collection %s", cfg.OpsLog.Backend, cfg.OpsLog.Collection)

	return nil
}
