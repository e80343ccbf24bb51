// Package redis provides the Redis-backed implementation of the
// storage.Storage interface, the ranked record store.
//
// PERSISTED LAYOUT
// ────────────────
//
//	<key_prefix><id>   HASH   id, name, birthday, description, score
//	<rank_key>         ZSET   member = id, score = record score
//
// Every write touches both structures inside one Lua script, which Redis
// runs atomically, so a reader never sees an id in the ranking without its
// hash (or the reverse). The scripts check the type of both keys before
// writing anything: a WRONGTYPE reply means the store is unchanged.
//
// Two scripts on the same id are each atomic but not ordered against each
// other: whichever runs last wins. A write always replaces the whole record.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aanand-mishra/records-api/internal/codec"
	"github.com/aanand-mishra/records-api/internal/config"
	"github.com/aanand-mishra/records-api/internal/metrics"
	"github.com/aanand-mishra/records-api/internal/storage"
	"github.com/aanand-mishra/records-api/internal/types"
)

// Client is the slice of the go-redis API this store needs. *goredis.Client
// satisfies it; tests may pass anything else that does.
type Client interface {
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
	ZCount(ctx context.Context, key, min, max string) *goredis.IntCmd
	ZRevRange(ctx context.Context, key string, start, stop int64) *goredis.StringSliceCmd
	Pipelined(ctx context.Context, fn func(goredis.Pipeliner) error) ([]goredis.Cmder, error)
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
	goredis.Scripter
}

// upsertScript writes the hash and the rank entry.
//
//	KEYS[1] hash key, KEYS[2] rank key
//	ARGV[1] score, ARGV[2] id, ARGV[3..] field/value pairs
var upsertScript = goredis.NewScript(`
local t = redis.call('TYPE', KEYS[1]).ok
if t ~= 'none' and t ~= 'hash' then
	return redis.error_reply('WRONGTYPE ' .. KEYS[1] .. ' holds a ' .. t)
end
t = redis.call('TYPE', KEYS[2]).ok
if t ~= 'none' and t ~= 'zset' then
	return redis.error_reply('WRONGTYPE ' .. KEYS[2] .. ' holds a ' .. t)
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// removeScript deletes the hash and the rank entry and returns the number
// of hashes deleted.
//
//	KEYS[1] hash key, KEYS[2] rank key
//	ARGV[1] id
var removeScript = goredis.NewScript(`
local t = redis.call('TYPE', KEYS[1]).ok
if t ~= 'none' and t ~= 'hash' then
	return redis.error_reply('WRONGTYPE ' .. KEYS[1] .. ' holds a ' .. t)
end
t = redis.call('TYPE', KEYS[2]).ok
if t ~= 'none' and t ~= 'zset' then
	return redis.error_reply('WRONGTYPE ' .. KEYS[2] .. ' holds a ' .. t)
end
local n = redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return n
`)

// Options tune a store built with NewWithClient.
type Options struct {
	KeyPrefix string
	RankKey   string
	OpTimeout time.Duration

	// Metrics, if set, counts records skipped while listing.
	Metrics *metrics.Manager
}

// Redis is the concrete implementation of storage.Storage.
type Redis struct {
	client    Client
	keyPrefix string
	rankKey   string
	timeout   time.Duration
	metrics   *metrics.Manager
}

// New dials the server described by cfg.Redis, checks it answers PING
// within the op timeout, and returns a ready-to-use store.
func New(cfg *config.Config, m *metrics.Manager) (*Redis, error) {
	rc := cfg.Redis

	client := goredis.NewClient(&goredis.Options{
		Addr:         rc.Addr(),
		Password:     rc.Password,
		DB:           rc.DB,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.OpTimeout,
		WriteTimeout: rc.OpTimeout,
		PoolSize:     rc.PoolSize,
	})

	r := NewWithClient(client, Options{
		KeyPrefix: rc.KeyPrefix,
		RankKey:   rc.RankKey,
		OpTimeout: rc.OpTimeout,
		Metrics:   m,
	})

	if err := r.Ping(context.Background()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: %w", err)
	}

	return r, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client Client, opts Options) *Redis {
	return &Redis{
		client:    client,
		keyPrefix: opts.KeyPrefix,
		rankKey:   opts.RankKey,
		timeout:   opts.OpTimeout,
		metrics:   opts.Metrics,
	}
}

func (r *Redis) hashKey(id string) string {
	return r.keyPrefix + id
}

// withTimeout bounds a single store call. A zero timeout leaves ctx as is.
func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// transportError logs the cause and wraps it as storage.ErrTransport.
func transportError(op, id string, err error) error {
	slog.Warn("redis operation failed",
		slog.String("op", op),
		slog.String("id", id),
		slog.String("error", err.Error()))
	return fmt.Errorf("redis.%s: %w: %w", op, storage.ErrTransport, err)
}

// Exists reports whether a hash is stored for id.
func (r *Redis) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.client.Exists(ctx, r.hashKey(id)).Result()
	if err != nil {
		return false, transportError("Exists", id, err)
	}
	return n > 0, nil
}

// Save writes the record hash and its rank entry in one atomic script.
func (r *Redis) Save(ctx context.Context, s types.Student) error {
	return r.upsert(ctx, "Save", s)
}

// Update is identical to Save: the whole record is rewritten.
func (r *Redis) Update(ctx context.Context, s types.Student) error {
	return r.upsert(ctx, "Update", s)
}

func (r *Redis) upsert(ctx context.Context, op string, s types.Student) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	fields := codec.ToFieldMap(s)
	args := make([]any, 0, 2+2*len(codec.Fields))
	args = append(args, s.Score, s.ID)
	for _, f := range codec.Fields {
		args = append(args, f, fields[f])
	}

	keys := []string{r.hashKey(s.ID), r.rankKey}
	if err := upsertScript.Run(ctx, r.client, keys, args...).Err(); err != nil {
		return transportError(op, s.ID, err)
	}
	return nil
}

// Remove deletes the hash and the rank entry in one atomic script. An id
// that was never stored is not an error.
func (r *Redis) Remove(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	keys := []string{r.hashKey(id), r.rankKey}
	del, err := removeScript.Run(ctx, r.client, keys, id).Int64()
	if err != nil {
		return transportError("Remove", id, err)
	}

	if del == 0 {
		slog.Debug("remove of unknown id", slog.String("id", id))
	}
	return nil
}

// ListPage returns one page of records, highest score first.
//
// The total only counts members scored inside [MinScore, MaxScore]; the
// range read itself walks the whole ranking. Ties come back in reverse
// lexicographic order of id, which is how ZREVRANGE orders equal scores.
//
// A ranked id whose hash is missing or cannot be decoded is skipped and
// logged, so the page can be shorter than PageSize.
func (r *Redis) ListPage(ctx context.Context, pageNum, pageSize int) (types.PageInfo[types.Student], error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	total, err := r.client.ZCount(ctx, r.rankKey,
		strconv.Itoa(types.MinScore), strconv.Itoa(types.MaxScore)).Result()
	if err != nil {
		return types.PageInfo[types.Student]{}, transportError("ListPage", "", err)
	}

	page := types.NewPageInfo[types.Student](pageNum, pageSize, total)

	ids, err := r.client.ZRevRange(ctx, r.rankKey,
		int64(page.StartIndex), int64(page.EndIndex)).Result()
	if err != nil {
		return types.PageInfo[types.Student]{}, transportError("ListPage", "", err)
	}
	if len(ids) == 0 {
		return page, nil
	}

	// One round trip for all the hashes. A server-side error on a single
	// key (WRONGTYPE, say) belongs to that record only; anything else
	// means the batch never completed.
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.hashKey(id))
		}
		return nil
	})
	var replyErr goredis.Error
	if err != nil && !errors.As(err, &replyErr) {
		return types.PageInfo[types.Student]{}, transportError("ListPage", "", err)
	}

	for i, id := range ids {
		if err := cmds[i].Err(); err != nil {
			r.skip(id, err)
			continue
		}

		fields := cmds[i].Val()
		if len(fields) == 0 {
			r.skip(id, errors.New("ranked id has no hash"))
			continue
		}

		s, err := codec.FromFieldMap(fields)
		if err != nil {
			r.skip(id, err)
			continue
		}

		page.Records = append(page.Records, s)
	}

	return page, nil
}

func (r *Redis) skip(id string, err error) {
	slog.Warn("skipping record in page",
		slog.String("id", id),
		slog.String("error", err.Error()))
	r.metrics.RecordSkipped()
}

// Ping checks the server answers within the op timeout.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return transportError("Ping", "", err)
	}
	return nil
}

// Close closes the client and its connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ storage.Storage = (*Redis)(nil)
