// Package redis provides the provider directory: a registry of live
// providers kept fresh through TTL'd heartbeat records.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// heartbeatTTL is how long a provider stays listed without a fresh
// heartbeat
const heartbeatTTL = 30 * time.Second

type providerDirectory struct {
	client redis.UniversalClient
	log    *zap.Logger
}

// NewProviderDirectory creates a new Redis-backed provider directory
func NewProviderDirectory(client redis.UniversalClient, log *zap.Logger) port.ProviderDirectory {
	return &providerDirectory{
		client: client,
		log:    log,
	}
}

// Register saves the provider state under a TTL'd key (heartbeat). A
// provider that stops heartbeating falls out of the candidate pool when
// the key expires.
func (d *providerDirectory) Register(ctx context.Context, provider *domain.Provider) error {
	data, err := json.Marshal(provider)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("provider:%s", provider.ID)
	return d.client.Set(ctx, key, data, heartbeatTTL).Err()
}

// Snapshot returns a read-only view of the currently registered providers.
// The matcher filters this view; it never mutates assignment state.
func (d *providerDirectory) Snapshot(ctx context.Context) ([]*domain.Provider, error) {
	keys, err := d.client.Keys(ctx, "provider:*").Result()
	if err != nil {
		return nil, err
	}

	var providers []*domain.Provider
	for _, key := range keys {
		val, err := d.client.Get(ctx, key).Result()
		if err != nil {
			continue // Skip expired/deleted keys race condition
		}

		var p domain.Provider
		if err := json.Unmarshal([]byte(val), &p); err != nil {
			d.log.Warn("Dropping malformed directory entry", zap.String("key", key), zap.Error(err))
			continue
		}
		providers = append(providers, &p)
	}
	return providers, nil
}
