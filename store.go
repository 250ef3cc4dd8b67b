/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Seednode/secretsanta/kvstore"
	"github.com/Seednode/secretsanta/santa"
)

// openStore picks where the game lives: a NATS key-value bucket when
// --nats-url is set, process memory otherwise. The returned func releases it.
func openStore(ctx context.Context, cfg *Config, key string) (santa.Store, func(), error) {
	if cfg.natsURL == "" {
		logf(cfg, "STORE: Keeping game %s in memory", key)

		return santa.NewMemoryStore(), func() {}, nil
	}

	nc, err := nats.Connect(cfg.natsURL,
		nats.Name("secretsanta"),
		nats.Timeout(cfg.storeTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logf(cfg, "STORE: Disconnected from %s: %v", cfg.natsURL, err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logf(cfg, "STORE: Reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	bucketCtx, cancel := context.WithTimeout(ctx, cfg.storeTimeout)
	defer cancel()

	kv, err := kvstore.EnsureBucket(bucketCtx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.natsBucket,
		Description: "secretsanta games",
		History:     5,
	}, 3)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	st := kvstore.New(kv, key)

	logf(cfg, "STORE: Keeping game %s in bucket %s at %s", st.Key(), cfg.natsBucket, nc.ConnectedUrl())

	return st, func() { _ = nc.Drain() }, nil
}
