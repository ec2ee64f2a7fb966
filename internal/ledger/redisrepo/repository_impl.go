package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/resumekit/entitled/internal/clock"
	"github.com/resumekit/entitled/internal/config"
	ledgerdomain "github.com/resumekit/entitled/internal/ledger/domain"
	"github.com/resumekit/entitled/internal/plan"
)

const (
	keyCounter  = "quota:%s:%s:%s"
	keyCapacity = "capacity:%s:%s"

	// counterTTL keeps closed-period counters readable for roughly thirteen
	// months of reporting. Refreshed only on writes, which only ever touch
	// the current period.
	counterTTL = 400 * 24 * time.Hour
)

// tryConsumeScript checks the bound and increments in one script invocation,
// so the read and the write cannot interleave with a concurrent caller.
const tryConsumeScript = `
local bounded = tonumber(ARGV[1])
local bound = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", KEYS[1]))
if current == nil then
  current = 0
end

if bounded == 1 and current >= bound then
  return {0, current}
end

local updated = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ttl)
return {1, updated}
`

type repo struct {
	client  *redis.Client
	script  *redis.Script
	clock   clock.Clock
	tracked []plan.Resource
}

// Provide builds a Redis-backed ledger repository. The tracked resource set
// comes from the catalog so period reads know which keys to fetch.
func Provide(cfg config.Config, catalog *plan.Catalog, clk clock.Clock) (ledgerdomain.Repository, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("ledger redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &repo{
		client:  client,
		script:  redis.NewScript(tryConsumeScript),
		clock:   clk,
		tracked: catalog.Resources(),
	}, nil
}

func (r *repo) CurrentCount(ctx context.Context, accountID string, resource plan.Resource, period ledgerdomain.Period) (int64, error) {
	value, err := r.client.Get(ctx, counterKey(accountID, resource, period)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

func (r *repo) CountsForPeriod(ctx context.Context, accountID string, period ledgerdomain.Period) (map[plan.Resource]int64, error) {
	keys := make([]string, 0, len(r.tracked))
	for _, resource := range r.tracked {
		keys = append(keys, counterKey(accountID, resource, period))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	counts := make(map[plan.Resource]int64)
	for i, raw := range values {
		if raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		counts[r.tracked[i]] = parsed
	}
	return counts, nil
}

func (r *repo) TryIncrement(ctx context.Context, accountID string, resource plan.Resource, period ledgerdomain.Period, bound plan.Limit) (ledgerdomain.ConsumptionResult, error) {
	bounded := 0
	limit := int64(0)
	if !bound.IsUnbounded() {
		bounded = 1
		limit = bound.Value()
	}

	res, err := r.script.Run(
		ctx,
		r.client,
		[]string{counterKey(accountID, resource, period)},
		bounded,
		limit,
		int64(counterTTL/time.Millisecond),
	).Slice()
	if err != nil {
		return ledgerdomain.ConsumptionResult{}, err
	}
	if len(res) < 2 {
		return ledgerdomain.ConsumptionResult{}, errors.New("invalid consume script response")
	}

	return ledgerdomain.ConsumptionResult{
		Accepted: castToInt(res[0]) == 1,
		NewCount: castToInt(res[1]),
	}, nil
}

func (r *repo) CurrentCapacity(ctx context.Context, accountID string, resource plan.Resource) (int64, error) {
	value, err := r.client.Get(ctx, capacityKey(accountID, resource)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

func (r *repo) ReportCapacity(ctx context.Context, accountID string, resource plan.Resource, total int64) error {
	return r.client.Set(ctx, capacityKey(accountID, resource), total, 0).Err()
}

// History walks backward month by month from the cursor. Counters older than
// the retention TTL are gone from Redis; the SQL backend is the durable
// reporting store.
func (r *repo) History(ctx context.Context, accountID string, before *ledgerdomain.Period, limit int) ([]ledgerdomain.HistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	period := ledgerdomain.PeriodOf(r.clock.Now())
	if before != nil {
		period = before.Prev()
	}

	var entries []ledgerdomain.HistoryEntry
	for i := 0; i < limit; i++ {
		counts, err := r.CountsForPeriod(ctx, accountID, period)
		if err != nil {
			return nil, err
		}
		for _, resource := range r.tracked {
			used, ok := counts[resource]
			if !ok {
				continue
			}
			entries = append(entries, ledgerdomain.HistoryEntry{
				Period:   period.String(),
				Resource: string(resource),
				Used:     used,
			})
		}
		period = period.Prev()
	}
	return entries, nil
}

func counterKey(accountID string, resource plan.Resource, period ledgerdomain.Period) string {
	return fmt.Sprintf(keyCounter, accountID, resource, period)
}

func capacityKey(accountID string, resource plan.Resource) string {
	return fmt.Sprintf(keyCapacity, accountID, resource)
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case string:
		parsed, _ := strconv.ParseInt(val, 10, 64)
		return parsed
	default:
		return 0
	}
}
