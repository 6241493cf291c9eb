package identity

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/caio-sobreiro/dicomarc/types"
)

// KeyPrefix prefixes the Redis set of identities linked to one identity.
const KeyPrefix = "dicomarc:pix:"

// Client is the subset of the Redis client the resolver uses
type Client interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// Redis resolves identities from Redis sets. Each identity, in
// "ID^^^Issuer" form, keys the set of identities linked to it.
type Redis struct {
	client Client
}

// NewRedis creates a resolver reading from client.
func NewRedis(client Client) *Redis {
	return &Redis{client: client}
}

// Resolve returns pid and the identities linked to it, or nil when none are.
func (r *Redis) Resolve(ctx context.Context, pid types.IDWithIssuer) ([]types.IDWithIssuer, error) {
	members, err := r.client.SMembers(ctx, KeyPrefix+pid.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("read linked identities of %s: %w", pid, err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	ids := []types.IDWithIssuer{pid}
	for _, m := range members {
		if id := types.ParseIDWithIssuer(m); id != pid && id.ID != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Link records that ids denote the same patient. Each identity's set gets
// every other identity.
func (r *Redis) Link(ctx context.Context, ids ...types.IDWithIssuer) error {
	for _, id := range ids {
		var others []interface{}
		for _, other := range ids {
			if other != id {
				others = append(others, other.String())
			}
		}
		if len(others) == 0 {
			continue
		}
		if err := r.client.SAdd(ctx, KeyPrefix+id.String(), others...).Err(); err != nil {
			return fmt.Errorf("link identities of %s: %w", id, err)
		}
	}
	return nil
}
