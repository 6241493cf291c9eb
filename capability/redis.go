package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/types"
)

// KeyPrefix prefixes the Redis key holding each AE's JSON entry.
const KeyPrefix = "dicomarc:ae:"

// Client is the subset of the Redis client the lookup uses
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis serves AE configurations stored as JSON entries in Redis, so they
// can change without restarting the archive
type Redis struct {
	client Client
}

// NewRedis creates a lookup reading from client.
func NewRedis(client Client) *Redis {
	return &Redis{client: client}
}

// Lookup reads and converts the entry of aeTitle.
func (r *Redis) Lookup(ctx context.Context, aeTitle string) (*types.AEConfig, error) {
	data, err := r.client.Get(ctx, KeyPrefix+aeTitle).Bytes()
	if err == redis.Nil {
		return nil, errors.NewCapabilityError(aeTitle, "unknown application entity")
	} else if err != nil {
		return nil, errors.NewStorageError("get AE configuration", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.NewStorageError("decode AE configuration", err)
	}
	if e.AETitle == "" {
		e.AETitle = aeTitle
	}
	ae, err := e.AEConfig()
	if err != nil {
		return nil, errors.NewCapabilityError(aeTitle, err.Error())
	}
	return ae, nil
}

// Put stores an entry, replacing any previous configuration of the AE.
func (r *Redis) Put(ctx context.Context, e *Entry) error {
	if _, err := e.AEConfig(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode AE configuration: %w", err)
	}
	if err := r.client.Set(ctx, KeyPrefix+e.AETitle, data, 0).Err(); err != nil {
		return errors.NewStorageError("set AE configuration", err)
	}
	return nil
}
