package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"remindr/internal/domain"
)

// RedisCounter keeps one hash per account:
// quota:{account} -> start, end (unix ms), limit, used.
type RedisCounter struct {
	Client *redis.Client
	Prefix string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// consumeScript returns {permitted, used}. No period or a period that does
// not contain now is a denial.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local amount = tonumber(ARGV[1])
local now = tonumber(ARGV[2])

local vals = redis.call('HMGET', key, 'start', 'end', 'limit', 'used')
if not vals[1] then
	return {0, 0}
end
local start = tonumber(vals[1])
local stop = tonumber(vals[2])
local limit = tonumber(vals[3])
local used = tonumber(vals[4]) or 0

if now < start or now >= stop then
	return {0, used}
end
if used + amount > limit then
	return {0, used}
end
used = redis.call('HINCRBY', key, 'used', amount)
return {1, used}
`)

func (c *RedisCounter) key(accountID string) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "quota"
	}
	return prefix + ":" + accountID
}

func (c *RedisCounter) Consume(ctx context.Context, accountID string, amount int, now time.Time) (bool, int, error) {
	res, err := consumeScript.Run(ctx, c.Client, []string{c.key(accountID)}, amount, now.UnixMilli()).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected quota script result %v", res)
	}
	return res[0] == 1, int(res[1]), nil
}

func (c *RedisCounter) Remaining(ctx context.Context, accountID string, now time.Time) (int, error) {
	q, err := c.Get(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !q.Contains(now) {
		return 0, nil
	}
	return q.Remaining(), nil
}

func (c *RedisCounter) Get(ctx context.Context, accountID string) (domain.QuotaCounter, error) {
	vals, err := c.Client.HGetAll(ctx, c.key(accountID)).Result()
	if err != nil {
		return domain.QuotaCounter{}, err
	}
	if len(vals) == 0 {
		return domain.QuotaCounter{}, domain.ErrNotFound
	}
	start, _ := strconv.ParseInt(vals["start"], 10, 64)
	end, _ := strconv.ParseInt(vals["end"], 10, 64)
	limit, _ := strconv.Atoi(vals["limit"])
	used, _ := strconv.Atoi(vals["used"])
	return domain.QuotaCounter{
		AccountID:   accountID,
		PeriodStart: time.UnixMilli(start).UTC(),
		PeriodEnd:   time.UnixMilli(end).UTC(),
		Limit:       limit,
		Used:        used,
	}, nil
}

// OpenPeriod replaces the account's counter with a fresh period.
func (c *RedisCounter) OpenPeriod(ctx context.Context, q domain.QuotaCounter) error {
	key := c.key(q.AccountID)
	_, err := c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"start", q.PeriodStart.UnixMilli(),
			"end", q.PeriodEnd.UnixMilli(),
			"limit", q.Limit,
			"used", q.Used,
		)
		p.ExpireAt(ctx, key, q.PeriodEnd.Add(24*time.Hour))
		return nil
	})
	return err
}
