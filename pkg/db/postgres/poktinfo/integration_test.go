package poktinfo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

var (
	pgOnce      sync.Once
	pgContainer *tcpostgres.PostgresContainer
	pgDSN       string
	pgErr       error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if pgContainer != nil {
		_ = pgContainer.Terminate(context.Background())
	}
	os.Exit(code)
}

// newTestDB returns a DB on a shared postgres container with an empty schema.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgOnce.Do(func() {
		pgContainer, pgErr = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("poktinfo"),
			tcpostgres.WithUsername("poktinfo"),
			tcpostgres.WithPassword("poktinfo"),
			tcpostgres.BasicWaitStrategies(),
		)
		if pgErr != nil {
			return
		}
		pgDSN, pgErr = pgContainer.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, pgErr)

	client, err := postgres.NewFromURL(ctx, zaptest.NewLogger(t), pgDSN, "poktinfo", postgres.DefaultPoolConfig("test"))
	require.NoError(t, err)
	t.Cleanup(client.Close)

	store := Wrap(client)
	require.NoError(t, store.InitializeDB(ctx))

	tables := make([]string, 0, len(schema))
	for _, tbl := range schema {
		tables = append(tables, tbl.name)
	}
	require.NoError(t, store.Exec(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE"))
	return store
}

func TestNodeVersionLifecycle(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	v1 := &models.NodeInfo{Address: "a1", URL: "https://n1.example.com:443", Domain: "example.com", Subdomain: "n1", Chains: []string{"0001"}, Height: 100, IsStaked: true}
	require.NoError(t, store.AppendNodeVersion(ctx, v1, 100))

	changed, err := store.HasURLChanged(ctx, "a1", v1.URL)
	require.NoError(t, err)
	require.False(t, changed)
	changed, err = store.HasURLChanged(ctx, "a1", "https://n2.example.com:443")
	require.NoError(t, err)
	require.True(t, changed)
	changed, err = store.HasChainsChanged(ctx, "a1", []string{"0001"})
	require.NoError(t, err)
	require.False(t, changed)
	changed, err = store.HasChainsChanged(ctx, "a1", []string{"0021", "0001"})
	require.NoError(t, err)
	require.True(t, changed)

	v2 := &models.NodeInfo{Address: "a1", URL: "https://n2.example.com:443", Domain: "example.com", Subdomain: "n2", Chains: []string{"0001", "0021"}, Height: 150, IsStaked: true}
	require.NoError(t, store.AppendNodeVersion(ctx, v2, 150))

	current, err := store.GetCurrentNode(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, v2.URL, current.URL)
	require.Equal(t, uint64(150), current.StartHeight)
	require.Nil(t, current.EndHeight)

	history, err := store.NodeHistory(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[0].EndHeight)
	require.Equal(t, uint64(150), *history[0].EndHeight)

	at, err := store.NodeAt(ctx, "a1", 120)
	require.NoError(t, err)
	require.Equal(t, v1.URL, at.URL)
	at, err = store.NodeAt(ctx, "a1", 150)
	require.NoError(t, err)
	require.Equal(t, v2.URL, at.URL)

	addrs, err := store.AddressesByDomain(ctx, "example.com", 120)
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, addrs)

	require.NoError(t, store.CloseNode(ctx, "a1", 200, false))
	_, err = store.GetCurrentNode(ctx, "a1")
	require.ErrorIs(t, err, dbpkg.ErrNotFound)

	history, err = store.NodeHistory(ctx, "a1")
	require.NoError(t, err)
	require.False(t, history[1].IsStaked)
	require.Equal(t, uint64(200), *history[1].EndHeight)

	require.ErrorIs(t, store.CloseNode(ctx, "a1", 210, false), dbpkg.ErrNotFound)
}

func TestAppendVersionIsAtomic(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.AppendNodeVersion(ctx, &models.NodeInfo{Address: "a1", URL: "https://ok.example.com", Height: 10}, 10))

	bad := &models.NodeInfo{Address: "a1", URL: "https://bad.example.com", Subdomain: strings.Repeat("x", 300), Height: 20}
	err := store.AppendNodeVersion(ctx, bad, 20)
	require.ErrorIs(t, err, dbpkg.ErrStorageWrite)

	current, err := store.GetCurrentNode(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "https://ok.example.com", current.URL)
	require.Nil(t, current.EndHeight)

	history, err := store.NodeHistory(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestHasChangedWithoutCurrentVersion(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	changed, err := store.HasURLChanged(ctx, "nobody", "https://x")
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = store.HasLocationChanged(ctx, "nobody", "", "Paris", "1.1.1.1", "OVH")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestLocationVersionsAreScopedByOrigin(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	eu := &models.LocationInfo{Address: "a1", IP: "1.2.3.4", City: "Berlin", Continent: "Europe", ISP: "Hetzner", RanFrom: "eu"}
	us := &models.LocationInfo{Address: "a1", IP: "1.2.3.4", City: "Berlin", Continent: "Europe", ISP: "Hetzner", RanFrom: "us"}
	require.NoError(t, store.AppendLocationVersion(ctx, eu, 5))
	require.NoError(t, store.AppendLocationVersion(ctx, us, 5))

	changed, err := store.HasLocationChanged(ctx, "a1", "eu", "Berlin", "1.2.3.4", "Hetzner")
	require.NoError(t, err)
	require.False(t, changed)
	changed, err = store.HasLocationChanged(ctx, "a1", "eu", "Berlin", "5.6.7.8", "Hetzner")
	require.NoError(t, err)
	require.True(t, changed)

	require.NoError(t, store.CloseLocation(ctx, "a1", "eu", 9))
	open, err := store.OpenLocations(ctx, "", "us")
	require.NoError(t, err)
	require.Len(t, open, 1)
	_, err = store.GetCurrentLocation(ctx, "a1", "eu")
	require.ErrorIs(t, err, dbpkg.ErrNotFound)
}

func TestProgressNeverDowngradesSuccess(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	ok, err := store.IsHeightRecorded(ctx, "rewards", 10)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.RecordHeight(ctx, "rewards", 10, models.StatusFail))
	ok, err = store.IsHeightRecorded(ctx, "rewards", 10)
	require.NoError(t, err)
	require.False(t, ok)
	failed, err := store.FailedHeights(ctx, "rewards")
	require.NoError(t, err)
	require.Equal(t, []uint64{10}, failed)

	require.NoError(t, store.RecordHeight(ctx, "rewards", 10, models.StatusSuccess))
	require.NoError(t, store.RecordHeight(ctx, "rewards", 10, models.StatusFail))
	ok, err = store.IsHeightRecorded(ctx, "rewards", 10)
	require.NoError(t, err)
	require.True(t, ok)
	failed, err = store.FailedHeights(ctx, "rewards")
	require.NoError(t, err)
	require.Empty(t, failed)

	last, err := store.LastRecordedHeight(ctx, "rewards")
	require.NoError(t, err)
	require.Equal(t, uint64(10), last)

	r := models.HeightRange{Start: 100, End: 200}
	require.NoError(t, store.RecordRange(ctx, "latency", r, models.StatusFail))
	ranges, err := store.FailedRanges(ctx, "latency")
	require.NoError(t, err)
	require.Equal(t, []models.HeightRange{r}, ranges)
	ok, err = store.IsRangeRecorded(ctx, "latency", r)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, store.RecordRange(ctx, "latency", r, models.StatusSuccess))
	ok, err = store.IsRangeRecorded(ctx, "latency", r)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCacheSetMembershipAndRollups(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	cs, err := store.CreateCacheSet(ctx, models.CacheSet{UserID: "u1", Name: "mine", IsActive: true})
	require.NoError(t, err)
	require.NotZero(t, cs.ID)

	require.NoError(t, store.AddCacheSetNodes(ctx, cs.ID, []string{"a1", "a2"}, 100))
	require.NoError(t, store.AddCacheSetNodes(ctx, cs.ID, []string{"a1"}, 110))
	require.NoError(t, store.RemoveCacheSetNodes(ctx, cs.ID, []string{"a2"}, 150))

	members, err := store.CacheSetAddresses(ctx, cs.ID, 120)
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, members)
	members, err = store.CacheSetAddresses(ctx, cs.ID, 160)
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, members)

	require.NoError(t, store.InsertRewards(ctx, []models.RewardInfo{
		{TxHash: "t1", Height: 101, Address: "a1", Rewards: 100, Chain: "0001", Relays: 10, StakeWeight: 1},
		{TxHash: "t2", Height: 102, Address: "a2", Rewards: 50, Chain: "0021", Relays: 5, StakeWeight: 0.5},
		{TxHash: "t1", Height: 101, Address: "a1", Rewards: 999, Chain: "0001", Relays: 10, StakeWeight: 1},
	}))

	total, err := store.RewardsTotal(ctx, []string{"a1", "a2"}, 100, 200, "")
	require.NoError(t, err)
	require.InDelta(t, 150, total, 1e-9)
	relays, err := store.RelaysTotal(ctx, []string{"a1", "a2"}, 100, 200, "0001")
	require.NoError(t, err)
	require.Equal(t, uint64(10), relays)

	window := dbpkg.CacheSetWindow{CacheSetID: cs.ID, Range: models.HeightRange{Start: 100, End: 200}, Interval: "24hr"}
	byChain, err := store.RewardsByChain(ctx, []string{"a1", "a2"}, 100, 200, 1)
	require.NoError(t, err)
	require.Len(t, byChain, 2)
	require.NoError(t, store.ReplaceRewardsCacheSet(ctx, window, byChain))
	require.NoError(t, store.ReplaceRewardsCacheSet(ctx, window, byChain))

	var rows int
	require.NoError(t, store.QueryRow(ctx, `SELECT COUNT(*) FROM rewards_cache_set WHERE cache_set_id = $1`, cs.ID).Scan(&rows))
	require.Equal(t, 2, rows)
}

func TestReplacePriceKeepsOneObservationPerHeight(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.ReplacePrice(ctx, models.CoinPrice{Coin: "pokt", VsCurrency: "usd", Price: 0.10, Height: 50}))
	require.NoError(t, store.ReplacePrice(ctx, models.CoinPrice{Coin: "pokt", VsCurrency: "usd", Price: 0.12, Height: 50}))

	p, err := store.PriceAt(ctx, "pokt", "usd", 60)
	require.NoError(t, err)
	require.InDelta(t, 0.12, p.Price, 1e-9)

	_, err = store.PriceAt(ctx, "pokt", "usd", 10)
	require.ErrorIs(t, err, dbpkg.ErrNotFound)
}

// Any sequence of appends and closes leaves at most one open version per key and
// versions whose intervals do not overlap.
func TestTemporalIntervalsProperty(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()
	var seq atomic.Int64

	rapid.Check(t, func(rt *rapid.T) {
		address := fmt.Sprintf("prop%d", seq.Add(1))
		height := uint64(0)
		open := false

		ops := rapid.IntRange(1, 8).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			height += rapid.Uint64Range(0, 5).Draw(rt, "gap")
			if rapid.Bool().Draw(rt, "close") {
				err := store.CloseNode(ctx, address, height, false)
				if open {
					require.NoError(rt, err)
				} else {
					require.ErrorIs(rt, err, dbpkg.ErrNotFound)
				}
				open = false
				continue
			}
			node := &models.NodeInfo{Address: address, URL: fmt.Sprintf("https://n%d.example.com", i), Height: height}
			require.NoError(rt, store.AppendNodeVersion(ctx, node, height))
			open = true
		}

		history, err := store.NodeHistory(ctx, address)
		require.NoError(rt, err)

		current := 0
		for i, v := range history {
			if v.EndHeight == nil {
				current++
				continue
			}
			require.LessOrEqual(rt, v.StartHeight, *v.EndHeight)
			if i+1 < len(history) {
				require.LessOrEqual(rt, *v.EndHeight, history[i+1].StartHeight)
			}
		}
		require.LessOrEqual(rt, current, 1)
		if open {
			require.Equal(rt, 1, current)
			require.Nil(rt, history[len(history)-1].EndHeight)
		}
	})
}
