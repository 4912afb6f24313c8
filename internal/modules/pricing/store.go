// README: Vote stores keyed by driver; sync.Map in memory, a hash in Redis.
package pricing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"yatri/internal/types"
)

// VoteStore keeps at most one vote per driver. Evict removes a driver's vote
// only while the stored vote still equals the given one, so a vote recast
// after List survives.
type VoteStore interface {
	Put(ctx context.Context, v Vote) error
	List(ctx context.Context) ([]Vote, error)
	Evict(ctx context.Context, stale ...Vote) error
}

type MemoryVoteStore struct {
	votes sync.Map // types.ID -> Vote
}

func NewMemoryVoteStore() *MemoryVoteStore {
	return &MemoryVoteStore{}
}

func (s *MemoryVoteStore) Put(_ context.Context, v Vote) error {
	s.votes.Store(v.DriverID, v)
	return nil
}

func (s *MemoryVoteStore) List(_ context.Context) ([]Vote, error) {
	var out []Vote
	s.votes.Range(func(_, value any) bool {
		out = append(out, value.(Vote))
		return true
	})
	return out, nil
}

func (s *MemoryVoteStore) Evict(_ context.Context, stale ...Vote) error {
	for _, v := range stale {
		s.votes.CompareAndDelete(v.DriverID, v)
	}
	return nil
}

const votesKey = "pricing:votes"

// HDEL only when the field still holds the value read earlier.
var evictScript = redis.NewScript(`
local n = 0
for i = 1, #ARGV, 2 do
	if redis.call("HGET", KEYS[1], ARGV[i]) == ARGV[i + 1] then
		n = n + redis.call("HDEL", KEYS[1], ARGV[i])
	end
end
return n
`)

func encodeVote(v Vote) string {
	return fmt.Sprintf("%d:%d", v.Direction, v.At.UnixNano())
}

// RedisVoteStore keeps one hash field per driver with value "<direction>:<unix nanos>".
type RedisVoteStore struct {
	redis *redis.Client
}

func NewRedisVoteStore(client *redis.Client) *RedisVoteStore {
	return &RedisVoteStore{redis: client}
}

func (s *RedisVoteStore) Put(ctx context.Context, v Vote) error {
	return s.redis.HSet(ctx, votesKey, string(v.DriverID), encodeVote(v)).Err()
}

func (s *RedisVoteStore) List(ctx context.Context) ([]Vote, error) {
	raw, err := s.redis.HGetAll(ctx, votesKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Vote, 0, len(raw))
	for driver, val := range raw {
		dir, at, ok := strings.Cut(val, ":")
		if !ok {
			continue
		}
		d, err := strconv.Atoi(dir)
		if err != nil {
			continue
		}
		ns, err := strconv.ParseInt(at, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Vote{DriverID: types.ID(driver), Direction: d, At: time.Unix(0, ns)})
	}
	return out, nil
}

func (s *RedisVoteStore) Evict(ctx context.Context, stale ...Vote) error {
	if len(stale) == 0 {
		return nil
	}
	args := make([]any, 0, 2*len(stale))
	for _, v := range stale {
		args = append(args, string(v.DriverID), encodeVote(v))
	}
	return evictScript.Run(ctx, s.redis, []string{votesKey}, args...).Err()
}
