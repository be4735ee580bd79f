// Package redisledger is an append-only oracle ledger on Redis.
//
// Each publisher owns a list of JSON entries; the tail of the list is the
// current record. A set tracks every publisher that has ever committed.
package redisledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/oracle"
	"xdao.co/modelsync/storage"
)

const defaultPrefix = "modelsync:ledger:"

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type Ledger struct {
	client *redis.Client
	prefix string
}

var _ oracle.Ledger = (*Ledger)(nil)

type entry struct {
	oracle.Commitment
	Height     uint64    `json:"height"`
	AppendedAt time.Time `json:"appended_at"`
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Ledger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connect redis: %v", storage.ErrUnavailable, err)
	}
	return New(client, cfg.KeyPrefix), nil
}

// New wraps an existing client. An empty prefix selects the default.
func New(client *redis.Client, prefix string) *Ledger {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Ledger{client: client, prefix: prefix}
}

func (l *Ledger) Close() error { return l.client.Close() }

func (l *Ledger) publisherKey(publisher string) string { return l.prefix + "pub:" + publisher }
func (l *Ledger) indexKey() string                     { return l.prefix + "publishers" }

func (l *Ledger) Append(ctx context.Context, c oracle.Commitment, height uint64) error {
	if err := c.Verify(); err != nil {
		return err
	}
	data, err := json.Marshal(entry{Commitment: c, Height: height, AppendedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal commitment: %w", err)
	}
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, l.publisherKey(c.Publisher), data)
		pipe.SAdd(ctx, l.indexKey(), c.Publisher)
		return nil
	})
	return mapErr(ctx, err)
}

func (l *Ledger) Record(ctx context.Context, publisher string) (artifact.PublishRecord, bool, error) {
	raw, err := l.client.LIndex(ctx, l.publisherKey(publisher), -1).Bytes()
	if errors.Is(err, redis.Nil) {
		return artifact.PublishRecord{}, false, nil
	}
	if err != nil {
		return artifact.PublishRecord{}, false, mapErr(ctx, err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return artifact.PublishRecord{}, false, fmt.Errorf("%w: ledger entry for %s: %v", storage.ErrCorrupt, publisher, err)
	}
	return artifact.PublishRecord{Identity: e.Identity, Height: e.Height}, true, nil
}

func (l *Ledger) Publishers(ctx context.Context) ([]string, error) {
	out, err := l.client.SMembers(ctx, l.indexKey()).Result()
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	return out, nil
}

func mapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cerr := storage.FromContext(ctx.Err()); cerr != nil {
		return fmt.Errorf("%w: %v", cerr, err)
	}
	if cerr := storage.FromContext(err); cerr != nil {
		return fmt.Errorf("%w: %v", cerr, err)
	}
	return fmt.Errorf("%w: redis: %v", storage.ErrUnavailable, err)
}
