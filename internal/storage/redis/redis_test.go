package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/records-api/internal/metrics"
	"github.com/aanand-mishra/records-api/internal/storage"
	"github.com/aanand-mishra/records-api/internal/types"
)

const (
	testPrefix = "student:"
	testRank   = "students:rank"
)

func newTestStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewWithClient(client, Options{
		KeyPrefix: testPrefix,
		RankKey:   testRank,
		OpTimeout: time.Second,
	}), mr
}

func ids(records []types.Student) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestExists(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "X")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, types.Student{ID: "X", Score: 10}))

	ok, err = store.Exists(ctx, "X")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSave_WritesHashAndRank(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	s := types.Student{ID: "s1", Name: "Ada", Birthday: "2000-01-02", Description: "d", Score: 88}
	require.NoError(t, store.Save(ctx, s))

	assert.Equal(t, "Ada", mr.HGet(testPrefix+"s1", "name"))
	assert.Equal(t, "2000-01-02", mr.HGet(testPrefix+"s1", "birthday"))
	assert.Equal(t, "88", mr.HGet(testPrefix+"s1", "score"))

	score, err := mr.ZScore(testRank, "s1")
	require.NoError(t, err)
	assert.Equal(t, 88.0, score)
}

func TestSave_EmptyKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewWithClient(client, Options{RankKey: testRank, OpTimeout: time.Second})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, types.Student{ID: "X", Name: "Ada", Score: 3}))
	assert.Equal(t, "Ada", mr.HGet("X", "name"))

	page, err := store.ListPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, ids(page.Records))
}

func TestUpdate_Overwrites(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, types.Student{ID: "s1", Name: "Ada", Score: 10}))
	require.NoError(t, store.Update(ctx, types.Student{ID: "s1", Name: "Ada L.", Score: 99}))

	assert.Equal(t, "Ada L.", mr.HGet(testPrefix+"s1", "name"))
	score, err := mr.ZScore(testRank, "s1")
	require.NoError(t, err)
	assert.Equal(t, 99.0, score)

	members, err := mr.ZMembers(testRank)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)
}

func TestRemove(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, types.Student{ID: "s1", Score: 10}))
	require.NoError(t, store.Save(ctx, types.Student{ID: "s2", Score: 20}))

	require.NoError(t, store.Remove(ctx, "s1"))

	assert.False(t, mr.Exists(testPrefix+"s1"))
	members, err := mr.ZMembers(testRank)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, members)

	t.Run("unknown id still succeeds", func(t *testing.T) {
		assert.NoError(t, store.Remove(ctx, "never-saved"))
	})
}

func TestSave_ForeignKeyLeavesStoreUnchanged(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(testPrefix+"X", "foreign"))

	err := store.Save(ctx, types.Student{ID: "X", Score: 42})
	require.ErrorIs(t, err, storage.ErrTransport)
	assert.Contains(t, err.Error(), "WRONGTYPE")

	got, err := mr.Get(testPrefix + "X")
	require.NoError(t, err)
	assert.Equal(t, "foreign", got)
	assert.False(t, mr.Exists(testRank))

	t.Run("rank key of the wrong type", func(t *testing.T) {
		store, mr := newTestStore(t)
		require.NoError(t, mr.Set(testRank, "foreign"))

		err := store.Save(ctx, types.Student{ID: "Y", Score: 1})
		require.ErrorIs(t, err, storage.ErrTransport)
		assert.False(t, mr.Exists(testPrefix+"Y"))
	})
}

func TestRemove_ForeignKeyLeavesStoreUnchanged(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(testPrefix+"X", "foreign"))
	_, err := mr.ZAdd(testRank, 5, "X")
	require.NoError(t, err)

	err = store.Remove(ctx, "X")
	require.ErrorIs(t, err, storage.ErrTransport)

	got, err := mr.Get(testPrefix + "X")
	require.NoError(t, err)
	assert.Equal(t, "foreign", got)
	members, err := mr.ZMembers(testRank)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, members)
}

func TestListPage_OrderedByScoreDescending(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, types.Student{ID: "A", Score: 90}))
	require.NoError(t, store.Save(ctx, types.Student{ID: "B", Score: 70}))
	require.NoError(t, store.Save(ctx, types.Student{ID: "C", Score: 80}))

	page, err := store.ListPage(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, ids(page.Records))
	assert.Equal(t, int64(3), page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 2, page.NextPage)

	page, err = store.ListPage(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids(page.Records))
	assert.Equal(t, 1, page.PrevPage)
	assert.Equal(t, 2, page.NextPage)
}

func TestListPage_TiesInReverseIDOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, store.Save(ctx, types.Student{ID: id, Score: 50}))
	}
	require.NoError(t, store.Save(ctx, types.Student{ID: "z", Score: 10}))

	page, err := store.ListPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a", "z"}, ids(page.Records))
}

func TestListPage_Empty(t *testing.T) {
	store, _ := newTestStore(t)

	page, err := store.ListPage(context.Background(), 1, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(0), page.TotalCount)
	assert.Equal(t, 0, page.TotalPages)
	assert.NotNil(t, page.Records)
	assert.Empty(t, page.Records)
}

func TestListPage_NormalisesArguments(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, store.Save(ctx, types.Student{ID: string(rune('a' + i)), Score: i}))
	}

	page, err := store.ListPage(ctx, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 1, page.PageNum)
	assert.Equal(t, 10, page.PageSize)
	assert.Len(t, page.Records, 10)
	assert.Equal(t, "l", page.Records[0].ID)
}

func TestListPage_HugePageNumberIsPastTheEnd(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, types.Student{ID: "A", Score: 90}))
	require.NoError(t, store.Save(ctx, types.Student{ID: "B", Score: 70}))
	require.NoError(t, store.Save(ctx, types.Student{ID: "C", Score: 80}))

	for _, size := range []int{2, 4, types.MaxPageSize + 1} {
		page, err := store.ListPage(ctx, 4611686018427387905, size)
		require.NoError(t, err)

		assert.Empty(t, page.Records, "size %d", size)
		assert.Equal(t, int64(3), page.TotalCount)
		assert.Positive(t, page.StartIndex)
		assert.LessOrEqual(t, page.PageSize, types.MaxPageSize)
	}
}

func TestListPage_RoundTripsFields(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	want := types.Student{ID: "s1", Name: "Ada", Birthday: "2000-01-02", Description: "x y", Score: 120}
	require.NoError(t, store.Save(ctx, want))

	page, err := store.ListPage(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, want, page.Records[0])
}

func TestListPage_CountOnlyIncludesValidScores(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, types.Student{ID: "ok", Score: 100}))
	require.NoError(t, store.Save(ctx, types.Student{ID: "high", Score: 200}))

	page, err := store.ListPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalCount)
	// The range read is not filtered, so the out-of-range record is still listed.
	assert.Equal(t, []string{"high", "ok"}, ids(page.Records))
}

func TestListPage_SkipsBrokenRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	m := metrics.NewManager()
	store := NewWithClient(client, Options{KeyPrefix: testPrefix, RankKey: testRank, OpTimeout: time.Second, Metrics: m})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, types.Student{ID: "good", Score: 90}))

	// Ranked id with no hash.
	_, err := mr.ZAdd(testRank, 80, "dangling")
	require.NoError(t, err)

	// Hash whose score cannot be decoded.
	mr.HSet(testPrefix+"corrupt", "id", "corrupt", "score", "ninety")
	_, err = mr.ZAdd(testRank, 70, "corrupt")
	require.NoError(t, err)

	// Key of the wrong type.
	require.NoError(t, mr.Set(testPrefix+"wrongtype", "plain string"))
	_, err = mr.ZAdd(testRank, 60, "wrongtype")
	require.NoError(t, err)

	page, err := store.ListPage(ctx, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"good"}, ids(page.Records))
	assert.Equal(t, int64(4), page.TotalCount)
	expected := `
# HELP records_store_records_skipped_total Ranked ids left out of a page because their hash was missing or unreadable
# TYPE records_store_records_skipped_total counter
records_store_records_skipped_total 3
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"records_store_records_skipped_total"))
}

func TestTransportFailure(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, types.Student{ID: "keep", Score: 1}))

	mr.SetError("ERR simulated outage")

	err := store.Save(ctx, types.Student{ID: "new", Score: 5})
	assert.ErrorIs(t, err, storage.ErrTransport)

	err = store.Remove(ctx, "keep")
	assert.ErrorIs(t, err, storage.ErrTransport)

	_, err = store.Exists(ctx, "keep")
	assert.ErrorIs(t, err, storage.ErrTransport)

	_, err = store.ListPage(ctx, 1, 10)
	assert.ErrorIs(t, err, storage.ErrTransport)

	assert.ErrorIs(t, store.Ping(ctx), storage.ErrTransport)

	mr.SetError("")

	assert.False(t, mr.Exists(testPrefix+"new"))
	assert.True(t, mr.Exists(testPrefix+"keep"))
	members, err := mr.ZMembers(testRank)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, members)
}

func TestServerGone(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	err := store.Save(context.Background(), types.Student{ID: "x"})
	assert.ErrorIs(t, err, storage.ErrTransport)
}

func skippedTotal(t *testing.T, m *metrics.Manager) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "records_store_records_skipped_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

// readConsistently lists pages until stop closes and checks every record
// it sees was written whole by one Save.
func readConsistently(t *testing.T, store *Redis, stop <-chan struct{}) int {
	t.Helper()

	reads := 0
	for {
		page, err := store.ListPage(context.Background(), 1, types.MaxPageSize)
		if !assert.NoError(t, err) {
			return reads
		}
		for _, rec := range page.Records {
			assert.Equal(t, fmt.Sprintf("%s@%d", rec.ID, rec.Score), rec.Name)
		}
		reads++

		select {
		case <-stop:
			return reads
		default:
		}
	}
}

func TestListPage_ConcurrentWriters(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	m := metrics.NewManager()
	store := NewWithClient(client, Options{KeyPrefix: testPrefix, RankKey: testRank, OpTimeout: 5 * time.Second, Metrics: m})

	const (
		writers = 4
		rounds  = 50
		idsEach = 5
	)

	write := func(t *testing.T, removes bool, removed *atomic.Int64) {
		stop := make(chan struct{})
		readDone := make(chan int)
		go func() { readDone <- readConsistently(t, store, stop) }()

		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				ctx := context.Background()
				for i := 0; i < rounds; i++ {
					id := fmt.Sprintf("w%d-%d", w, i%idsEach)
					score := (w*rounds + i) % (types.MaxScore + 1)
					assert.NoError(t, store.Save(ctx, types.Student{ID: id, Name: fmt.Sprintf("%s@%d", id, score), Score: score}))
					if removes && i%2 == 1 {
						assert.NoError(t, store.Remove(ctx, id))
						removed.Add(1)
					}
				}
			}(w)
		}
		wg.Wait()
		close(stop)
		assert.Positive(t, <-readDone)
	}

	t.Run("saves only", func(t *testing.T) {
		write(t, false, nil)

		// Hash and rank entry always appear together, so nothing is skipped.
		assert.Equal(t, 0.0, skippedTotal(t, m))

		page, err := store.ListPage(context.Background(), 1, types.MaxPageSize)
		require.NoError(t, err)
		assert.Len(t, page.Records, writers*idsEach)
	})

	t.Run("saves and removes", func(t *testing.T) {
		var removed atomic.Int64
		write(t, true, &removed)

		// A page is read in two round trips, so an id removed between them
		// may be skipped while writers run, never once they stop.
		assert.Positive(t, removed.Load())
		skipped := skippedTotal(t, m)

		page, err := store.ListPage(context.Background(), 1, types.MaxPageSize)
		require.NoError(t, err)
		assert.Equal(t, skipped, skippedTotal(t, m), "a quiet store lists without skips")
		assert.Equal(t, page.TotalCount, int64(len(page.Records)))
		for _, rec := range page.Records {
			assert.Equal(t, fmt.Sprintf("%s@%d", rec.ID, rec.Score), rec.Name)
		}
	})
}
