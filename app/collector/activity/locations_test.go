package activity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/geo"
)

func seedNode(t *testing.T, store *fakeStore, address, url string, height uint64) {
	t.Helper()
	require.NoError(t, store.AppendNodeVersion(context.Background(), &models.NodeInfo{
		Address: address, URL: url, Chains: []string{"0021"}, IsStaked: true,
	}, height))
}

func TestSnapshotLocations(t *testing.T) {
	store := newFakeStore()
	loc := &fakeLocator{answers: map[string]geo.Location{
		"a.example.com": {IP: "1.1.1.1", City: "Paris", Continent: "Europe", Country: "France", ISP: "OVH"},
		"b.example.com": {IP: "2.2.2.2", City: "Austin", Continent: "North America", Country: "United States", ISP: "AWS"},
	}}
	ac := newContext(t, store, newFakeRPC())
	ac.Locator = loc
	ac.RanFrom = "us-east"
	ctx := context.Background()

	seedNode(t, store, "a1", "https://a.example.com:443", 100)
	seedNode(t, store, "a2", "https://a.example.com:8081", 100)
	seedNode(t, store, "b", "https://b.example.com", 100)
	seedNode(t, store, "c", "https://unknown.example.com", 100)

	require.NoError(t, ac.SnapshotLocations(ctx, 100))

	assert.Equal(t, 1, loc.lookups["a.example.com"], "one lookup per host")
	for _, addr := range []string{"a1", "a2", "b"} {
		got, err := store.GetCurrentLocation(ctx, addr, "us-east")
		require.NoError(t, err, addr)
		assert.Equal(t, uint64(100), got.StartHeight)
	}
	// failed lookups skip the node without failing the unit
	_, err := store.GetCurrentLocation(ctx, "c", "us-east")
	require.Error(t, err)

	// unchanged location: no new version; b moves
	loc.answers["b.example.com"] = geo.Location{IP: "2.2.2.3", City: "Dallas", Continent: "North America", Country: "United States", ISP: "AWS"}
	require.NoError(t, ac.SnapshotLocations(ctx, 200))
	assert.Len(t, store.locations[locKey("a1", "us-east")], 1)
	versions := store.locations[locKey("b", "us-east")]
	require.Len(t, versions, 2)
	assert.Equal(t, uint64(200), *versions[0].EndHeight)
	assert.Equal(t, "Dallas", versions[1].City)

	// a2 unstakes: its location is closed
	require.NoError(t, store.CloseNode(ctx, "a2", 300, false))
	require.NoError(t, ac.SnapshotLocations(ctx, 300))
	closed := store.locations[locKey("a2", "us-east")][0]
	require.NotNil(t, closed.EndHeight)
	assert.Equal(t, uint64(300), *closed.EndHeight)
}

func TestSnapshotLocationsScopedByRegion(t *testing.T) {
	store := newFakeStore()
	ac := newContext(t, store, newFakeRPC())
	ac.Locator = &fakeLocator{answers: map[string]geo.Location{"a.example.com": {IP: "1.1.1.1", City: "Paris"}}}
	ctx := context.Background()
	seedNode(t, store, "a", "https://a.example.com", 100)

	ac.RanFrom = "us-east"
	require.NoError(t, ac.SnapshotLocations(ctx, 100))
	ac.RanFrom = "eu-west"
	require.NoError(t, ac.SnapshotLocations(ctx, 100))

	assert.Len(t, store.locations[locKey("a", "us-east")], 1)
	assert.Len(t, store.locations[locKey("a", "eu-west")], 1)
}

func TestSnapshotLocationsStorageFailure(t *testing.T) {
	store := newFakeStore()
	ac := newContext(t, store, newFakeRPC())
	ac.Locator = &fakeLocator{answers: map[string]geo.Location{"a.example.com": {IP: "1.1.1.1"}}}
	seedNode(t, store, "a", "https://a.example.com", 100)
	store.failAppend["a"] = true

	require.Error(t, ac.SnapshotLocations(context.Background(), 100))
}

func TestSnapshotLocationsWithoutLocator(t *testing.T) {
	ac := newContext(t, newFakeStore(), newFakeRPC())
	require.ErrorIs(t, ac.SnapshotLocations(context.Background(), 100), activity.ErrNoLocator)
}
