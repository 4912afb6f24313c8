package pricing

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatri/internal/config"
	"yatri/internal/types"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() config.PricingConfig {
	return config.PricingConfig{BaseFare: 50, PerKm: 15, Currency: "INR", VoteWindow: 10 * time.Minute}
}

func newTestService(store VoteStore) (*Service, *clock) {
	c := &clock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	return NewService(store, testConfig(), zerolog.Nop()).WithClock(c.Now), c
}

func TestQuoteWithoutVotes(t *testing.T) {
	svc, _ := newTestService(NewMemoryVoteStore())
	q, err := svc.Quote(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, types.Money{Amount: 12500, Currency: "INR"}, q.Fare)
	assert.Zero(t, q.Adjustment)
}

func TestQuoteAppliesAdjustment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(NewMemoryVoteStore())
	require.NoError(t, svc.SubmitVote(ctx, "d1", VoteUp))
	require.NoError(t, svc.SubmitVote(ctx, "d2", VoteUp))
	require.NoError(t, svc.SubmitVote(ctx, "d3", VoteUp))
	require.NoError(t, svc.SubmitVote(ctx, "d4", VoteDown))

	q, err := svc.Quote(ctx, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, q.Adjustment, 1e-9)
	// 50 + 15*4*1.5
	assert.Equal(t, int64(14000), q.Fare.Amount)
}

func TestQuoteFloorsAtMinFare(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MinFare = 80
	svc := NewService(NewMemoryVoteStore(), cfg, zerolog.Nop())
	q, err := svc.Quote(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), q.Fare.Amount)

	_, err = svc.Quote(ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidDistance)
}

func TestSubmitVoteValidation(t *testing.T) {
	svc, _ := newTestService(NewMemoryVoteStore())
	for _, dir := range []int{0, 2, -2} {
		assert.ErrorIs(t, svc.SubmitVote(context.Background(), "d1", dir), ErrInvalidVote, "direction %d", dir)
	}
	assert.ErrorIs(t, svc.SubmitVote(context.Background(), "", VoteUp), ErrInvalidVote)
}

func TestNewerVoteReplacesOlder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(NewMemoryVoteStore())
	require.NoError(t, svc.SubmitVote(ctx, "d1", VoteUp))
	require.NoError(t, svc.SubmitVote(ctx, "d1", VoteDown))

	sum, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Votes)
	assert.Equal(t, -1.0, sum.Adjustment)
}

func TestVotesExpireOutsideWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVoteStore()
	svc, c := newTestService(store)
	require.NoError(t, svc.SubmitVote(ctx, "d1", VoteUp))
	c.Advance(6 * time.Minute)
	require.NoError(t, svc.SubmitVote(ctx, "d2", VoteDown))

	adj, err := svc.CurrentAdjustment(ctx)
	require.NoError(t, err)
	assert.Zero(t, adj)

	c.Advance(5 * time.Minute)
	adj, err = svc.CurrentAdjustment(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1.0, adj)

	left, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, left, 1, "expired vote evicted on read")

	c.Advance(time.Hour)
	adj, err = svc.CurrentAdjustment(ctx)
	require.NoError(t, err)
	assert.Zero(t, adj)
}

// listHookStore runs afterList once, between the service's List and Evict.
type listHookStore struct {
	VoteStore
	afterList func()
}

func (s *listHookStore) List(ctx context.Context) ([]Vote, error) {
	votes, err := s.VoteStore.List(ctx)
	if hook := s.afterList; hook != nil {
		s.afterList = nil
		hook()
	}
	return votes, err
}

func TestRecastVoteSurvivesEviction(t *testing.T) {
	ctx := context.Background()
	store := &listHookStore{VoteStore: NewMemoryVoteStore()}
	svc, c := newTestService(store)
	require.NoError(t, svc.SubmitVote(ctx, "d1", VoteDown))
	c.Advance(11 * time.Minute)

	store.afterList = func() {
		require.NoError(t, svc.SubmitVote(ctx, "d1", VoteUp))
	}
	sum, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Votes, "listed vote was stale")

	sum, err = svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Votes)
	assert.Equal(t, 1.0, sum.Adjustment)
}

func TestEvictSkipsReplacedVote(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVoteStore()
	old := Vote{DriverID: "d1", Direction: VoteDown, At: time.Unix(100, 0)}
	fresh := Vote{DriverID: "d1", Direction: VoteUp, At: time.Unix(200, 0)}
	require.NoError(t, store.Put(ctx, old))
	require.NoError(t, store.Put(ctx, fresh))

	require.NoError(t, store.Evict(ctx, old))
	left, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Vote{fresh}, left)

	require.NoError(t, store.Evict(ctx, fresh))
	left, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestAdjustmentBoundedUnderConcurrentVotes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(NewMemoryVoteStore())
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := VoteUp
			if i%3 == 0 {
				dir = VoteDown
			}
			_ = svc.SubmitVote(ctx, types.ID(fmt.Sprintf("d%d", i%40)), dir)
			adj, err := svc.CurrentAdjustment(ctx)
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, adj, -1.0)
			assert.LessOrEqual(t, adj, 1.0)
		}(i)
	}
	wg.Wait()

	sum, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, sum.Votes, 40)
}

func TestRedisVoteStore(t *testing.T) {
	addr := os.Getenv("YATRI_TEST_REDIS")
	if addr == "" {
		t.Skip("YATRI_TEST_REDIS not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		client.Del(ctx, votesKey)
		_ = client.Close()
	})
	require.NoError(t, client.Del(ctx, votesKey).Err())

	store := NewRedisVoteStore(client)
	svc, c := newTestService(store)
	require.NoError(t, svc.SubmitVote(ctx, "d1", VoteUp))
	require.NoError(t, svc.SubmitVote(ctx, "d1", VoteDown))
	require.NoError(t, svc.SubmitVote(ctx, "d2", VoteDown))

	adj, err := svc.CurrentAdjustment(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1.0, adj)

	c.Advance(time.Hour)
	adj, err = svc.CurrentAdjustment(ctx)
	require.NoError(t, err)
	assert.Zero(t, adj)

	n, err := client.HLen(ctx, votesKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	old := Vote{DriverID: "d3", Direction: VoteDown, At: time.Unix(100, 0)}
	require.NoError(t, store.Put(ctx, old))
	require.NoError(t, store.Put(ctx, Vote{DriverID: "d3", Direction: VoteUp, At: time.Unix(200, 0)}))
	require.NoError(t, store.Evict(ctx, old))
	left, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, VoteUp, left[0].Direction)
}
