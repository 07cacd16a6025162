package activity_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/geo"
	"github.com/thunderhead-labs/poktinfo/pkg/redis"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
)

var errBoom = errors.New("boom")

type heightKey struct {
	service string
	height  uint64
}

type rangeKey struct {
	service string
	r       models.HeightRange
}

type cacheSetKey struct {
	id       int64
	service  string
	r        models.HeightRange
	interval string
}

// fakeStore is an in-memory db.Store with the temporal and progress semantics of the real one.
type fakeStore struct {
	mu sync.Mutex

	nodes     map[string][]models.NodeInfo
	locations map[string][]models.LocationInfo

	heights  map[heightKey]models.Status
	ranges   map[rangeKey]models.Status
	csRanges map[cacheSetKey]models.Status

	rewards map[string]models.RewardInfo

	latency     map[models.HeightRange][]models.LatencyCache
	errorsCache map[models.HeightRange][]models.ErrorsCache

	cacheSets      []models.CacheSet
	members        map[int64][]string
	rewardRollups  map[db.CacheSetWindow][]models.RewardsCacheSet
	countRollups   map[db.CacheSetWindow][]models.NodeCountCacheSet
	locRollups     map[db.CacheSetWindow][]models.LocationCacheSet
	latencyRollups []db.CacheSetWindow
	errorRollups   []db.CacheSetWindow
	nodeCounts     map[string]uint64
	byChain        []models.RewardsCacheSet

	prices    []models.CoinPrice
	endpoints map[string]models.RPCEndpoint

	failAppend  map[string]bool
	failRecord  bool
	failRecords int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:         map[string][]models.NodeInfo{},
		locations:     map[string][]models.LocationInfo{},
		heights:       map[heightKey]models.Status{},
		ranges:        map[rangeKey]models.Status{},
		csRanges:      map[cacheSetKey]models.Status{},
		rewards:       map[string]models.RewardInfo{},
		latency:       map[models.HeightRange][]models.LatencyCache{},
		errorsCache:   map[models.HeightRange][]models.ErrorsCache{},
		members:       map[int64][]string{},
		rewardRollups: map[db.CacheSetWindow][]models.RewardsCacheSet{},
		countRollups:  map[db.CacheSetWindow][]models.NodeCountCacheSet{},
		locRollups:    map[db.CacheSetWindow][]models.LocationCacheSet{},
		endpoints:     map[string]models.RPCEndpoint{},
		failAppend:    map[string]bool{},
	}
}

func ptr[T any](v T) *T { return &v }

// nodes

func (s *fakeStore) currentNode(address string) *models.NodeInfo {
	versions := s.nodes[address]
	for i := range versions {
		if versions[i].EndHeight == nil {
			return &versions[i]
		}
	}
	return nil
}

func (s *fakeStore) GetCurrentNode(_ context.Context, address string) (*models.NodeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.currentNode(address)
	if n == nil {
		return nil, db.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *fakeStore) HasURLChanged(_ context.Context, address, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.currentNode(address)
	return n != nil && n.URL != url, nil
}

func (s *fakeStore) HasChainsChanged(_ context.Context, address string, chains []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.currentNode(address)
	return n != nil && !utils.SameSet(n.Chains, chains), nil
}

func (s *fakeStore) AppendNodeVersion(_ context.Context, node *models.NodeInfo, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend[node.Address] {
		return &db.StorageWriteError{Op: "append", Table: models.NodesInfoTableName, Err: errBoom}
	}
	if cur := s.currentNode(node.Address); cur != nil {
		cur.EndHeight = ptr(height)
	}
	v := *node
	v.StartHeight = height
	v.EndHeight = nil
	s.nodes[node.Address] = append(s.nodes[node.Address], v)
	return nil
}

func (s *fakeStore) CloseNode(_ context.Context, address string, endHeight uint64, isStaked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.currentNode(address)
	if cur == nil {
		return db.ErrNotFound
	}
	cur.EndHeight = ptr(endHeight)
	cur.IsStaked = isStaked
	return nil
}

func (s *fakeStore) ActiveNodes(_ context.Context, _ string) ([]models.NodeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.NodeInfo
	for addr := range s.nodes {
		if n := s.currentNode(addr); n != nil {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// locations

func locKey(address, ranFrom string) string { return address + "|" + ranFrom }

func (s *fakeStore) currentLocation(address, ranFrom string) *models.LocationInfo {
	versions := s.locations[locKey(address, ranFrom)]
	for i := range versions {
		if versions[i].EndHeight == nil {
			return &versions[i]
		}
	}
	return nil
}

func (s *fakeStore) GetCurrentLocation(_ context.Context, address, ranFrom string) (*models.LocationInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.currentLocation(address, ranFrom)
	if l == nil {
		return nil, db.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *fakeStore) HasLocationChanged(_ context.Context, address, ranFrom, city, ip, isp string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.currentLocation(address, ranFrom)
	if l == nil {
		return false, nil
	}
	return l.City != city || l.IP != ip || l.ISP != isp, nil
}

func (s *fakeStore) AppendLocationVersion(_ context.Context, loc *models.LocationInfo, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend[loc.Address] {
		return &db.StorageWriteError{Op: "append", Table: models.LocationInfoTableName, Err: errBoom}
	}
	if cur := s.currentLocation(loc.Address, loc.RanFrom); cur != nil {
		cur.EndHeight = ptr(height)
	}
	v := *loc
	v.StartHeight = height
	v.EndHeight = nil
	k := locKey(loc.Address, loc.RanFrom)
	s.locations[k] = append(s.locations[k], v)
	return nil
}

func (s *fakeStore) CloseLocation(_ context.Context, address, ranFrom string, endHeight uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.currentLocation(address, ranFrom)
	if cur == nil {
		return db.ErrNotFound
	}
	cur.EndHeight = ptr(endHeight)
	return nil
}

func (s *fakeStore) OpenLocations(_ context.Context, _ string, ranFrom string) ([]models.LocationInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LocationInfo
	for _, versions := range s.locations {
		for _, v := range versions {
			if v.EndHeight == nil && v.RanFrom == ranFrom {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) CurrentLocations(_ context.Context, addresses []string, ranFrom string) ([]models.LocationInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LocationInfo
	for _, a := range addresses {
		if l := s.currentLocation(a, ranFrom); l != nil {
			out = append(out, *l)
		}
	}
	return out, nil
}

// progress

func upsert[K comparable](m map[K]models.Status, k K, status models.Status) {
	if m[k] == models.StatusSuccess {
		return
	}
	m[k] = status
}

func (s *fakeStore) recordErr() error {
	if s.failRecord {
		s.failRecords++
		return &db.StorageWriteError{Op: "record", Table: models.ServicesStateTableName, Err: errBoom}
	}
	return nil
}

func (s *fakeStore) IsHeightRecorded(_ context.Context, service string, height uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heights[heightKey{service, height}] == models.StatusSuccess, nil
}

func (s *fakeStore) IsRangeRecorded(_ context.Context, service string, r models.HeightRange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranges[rangeKey{service, r}] == models.StatusSuccess, nil
}

func (s *fakeStore) IsCacheSetRangeRecorded(_ context.Context, id int64, service string, r models.HeightRange, interval string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csRanges[cacheSetKey{id, service, r, interval}] == models.StatusSuccess, nil
}

func (s *fakeStore) RecordHeight(_ context.Context, service string, height uint64, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recordErr(); err != nil {
		return err
	}
	upsert(s.heights, heightKey{service, height}, status)
	return nil
}

func (s *fakeStore) RecordRange(_ context.Context, service string, r models.HeightRange, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recordErr(); err != nil {
		return err
	}
	upsert(s.ranges, rangeKey{service, r}, status)
	return nil
}

func (s *fakeStore) RecordCacheSetRange(_ context.Context, id int64, service string, r models.HeightRange, interval string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recordErr(); err != nil {
		return err
	}
	upsert(s.csRanges, cacheSetKey{id, service, r, interval}, status)
	return nil
}

func (s *fakeStore) FailedHeights(_ context.Context, service string) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint64
	for k, st := range s.heights {
		if k.service == service && st == models.StatusFail {
			out = append(out, k.height)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *fakeStore) FailedRanges(_ context.Context, service string) ([]models.HeightRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.HeightRange
	for k, st := range s.ranges {
		if k.service == service && st == models.StatusFail {
			out = append(out, k.r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (s *fakeStore) FailedCacheSetRanges(_ context.Context, service string) ([]models.CacheSetStateRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CacheSetStateRange
	for k, st := range s.csRanges {
		if k.service == service && st == models.StatusFail {
			out = append(out, models.CacheSetStateRange{CacheSetID: k.id, Service: k.service, Range: k.r, Interval: k.interval, Status: st})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CacheSetID < out[j].CacheSetID })
	return out, nil
}

func (s *fakeStore) LastRecordedHeight(_ context.Context, service string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last uint64
	for k, st := range s.heights {
		if k.service == service && st == models.StatusSuccess && k.height > last {
			last = k.height
		}
	}
	return last, nil
}

// rewards

func (s *fakeStore) InsertRewards(_ context.Context, rewards []models.RewardInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rewards {
		if _, ok := s.rewards[r.TxHash]; !ok {
			s.rewards[r.TxHash] = r
		}
	}
	return nil
}

func (s *fakeStore) RewardsTotal(context.Context, []string, uint64, uint64, string) (float64, error) {
	return 0, nil
}

func (s *fakeStore) RelaysTotal(context.Context, []string, uint64, uint64, string) (uint64, error) {
	return 0, nil
}

func (s *fakeStore) RewardsByChain(_ context.Context, _ []string, _, _ uint64, _ float64) ([]models.RewardsCacheSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RewardsCacheSet(nil), s.byChain...), nil
}

// cache sets

func (s *fakeStore) ActiveCacheSets(context.Context) ([]models.CacheSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CacheSet(nil), s.cacheSets...), nil
}

func (s *fakeStore) CacheSetAddresses(_ context.Context, id int64, _ uint64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[id], nil
}

func (s *fakeStore) NodeCountByChain(context.Context, []string, uint64, uint64) (map[string]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeCounts, nil
}

func (s *fakeStore) ReplaceRewardsCacheSet(_ context.Context, key db.CacheSetWindow, rows []models.RewardsCacheSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewardRollups[key] = rows
	return nil
}

func (s *fakeStore) ReplaceNodeCountCacheSet(_ context.Context, key db.CacheSetWindow, rows []models.NodeCountCacheSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countRollups[key] = rows
	return nil
}

func (s *fakeStore) ReplaceLatencyCacheSet(_ context.Context, key db.CacheSetWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencyRollups = append(s.latencyRollups, key)
	return nil
}

func (s *fakeStore) ReplaceErrorsCacheSet(_ context.Context, key db.CacheSetWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorRollups = append(s.errorRollups, key)
	return nil
}

func (s *fakeStore) ReplaceLocationCacheSet(_ context.Context, key db.CacheSetWindow, rows []models.LocationCacheSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locRollups[key] = rows
	return nil
}

// caches, prices, endpoints

func (s *fakeStore) ReplaceLatencyCache(_ context.Context, r models.HeightRange, rows []models.LatencyCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency[r] = rows
	return nil
}

func (s *fakeStore) ReplaceErrorsCache(_ context.Context, r models.HeightRange, rows []models.ErrorsCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorsCache[r] = rows
	return nil
}

func (s *fakeStore) ReplacePrice(_ context.Context, p models.CoinPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = append(s.prices, p)
	return nil
}

func (s *fakeStore) UpsertEndpoint(_ context.Context, ep *models.RPCEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[ep.Endpoint] = *ep
	return nil
}

func (s *fakeStore) ListEndpoints(context.Context) ([]models.RPCEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RPCEndpoint
	for _, ep := range s.endpoints {
		out = append(out, ep)
	}
	return out, nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

var _ db.Store = (*fakeStore)(nil)

// fakeRPC serves canned chain data keyed by height.
type fakeRPC struct {
	mu sync.Mutex

	txs     map[uint64][]rpc.Tx
	claims  map[uint64][]rpc.Claim
	nodes   map[uint64][]rpc.Node
	tokens  map[string]uint64
	failTxs map[uint64]int // remaining failures per height

	multiplier float64
	percentage float64
	rscal      uint64
	weights    rpc.StakeWeightParams

	calls map[string]int
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		txs:        map[uint64][]rpc.Tx{},
		claims:     map[uint64][]rpc.Claim{},
		nodes:      map[uint64][]rpc.Node{},
		tokens:     map[string]uint64{},
		failTxs:    map[uint64]int{},
		multiplier: 1000,
		percentage: 0.89,
		rscal:      rpc.RSCALFallbackHeight,
		calls:      map[string]int{},
	}
}

func (f *fakeRPC) called(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeRPC) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRPC) ChainHead(context.Context) (uint64, error) { return 0, nil }
func (f *fakeRPC) Block(context.Context, uint64) (*rpc.Block, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRPC) BlockTime(context.Context, uint64) (time.Time, error) { return time.Time{}, nil }

func (f *fakeRPC) Node(_ context.Context, address string, _ uint64) (*rpc.Node, error) {
	f.called("Node")
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.Node{Address: address, Tokens: rpc.Uint64(f.tokens[address])}, nil
}

func (f *fakeRPC) NodeBalance(context.Context, string, uint64) (uint64, error) { return 0, nil }
func (f *fakeRPC) OutputAddress(_ context.Context, a string, _ uint64) (string, error) {
	return a, nil
}

func (f *fakeRPC) Nodes(_ context.Context, height uint64) ([]rpc.Node, error) {
	f.called("Nodes")
	f.mu.Lock()
	defer f.mu.Unlock()
	nodes, ok := f.nodes[height]
	if !ok {
		return nil, fmt.Errorf("no nodes at %d", height)
	}
	return nodes, nil
}

func (f *fakeRPC) Balance(context.Context, string, uint64) (uint64, error) { return 0, nil }
func (f *fakeRPC) Supply(context.Context, uint64) (*rpc.Supply, error)     { return &rpc.Supply{}, nil }
func (f *fakeRPC) Inflation(context.Context, uint64) (int64, error)        { return 0, nil }

func (f *fakeRPC) BlockTxs(_ context.Context, height uint64) ([]rpc.Tx, error) {
	f.called("BlockTxs")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTxs[height] > 0 {
		f.failTxs[height]--
		return nil, &rpc.Error{Path: "blocktxs/", Attempts: 5, Err: errBoom}
	}
	return f.txs[height], nil
}

func (f *fakeRPC) AccountTxs(context.Context, string, uint64) ([]rpc.Tx, error) { return nil, nil }

func (f *fakeRPC) NodeClaims(_ context.Context, height uint64, _ string) ([]rpc.Claim, error) {
	f.called("NodeClaims")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims[height], nil
}

func (f *fakeRPC) Param(context.Context, uint64, string) (string, error)        { return "", nil }
func (f *fakeRPC) AllParams(context.Context, uint64) (map[string]string, error) { return nil, nil }
func (f *fakeRPC) RSCALHeight(context.Context, uint64) uint64                   { return f.rscal }
func (f *fakeRPC) DAOAllocation(context.Context, uint64) (float64, error)       { return 10, nil }
func (f *fakeRPC) ProposerPercentage(context.Context, uint64) (float64, error)  { return 1, nil }
func (f *fakeRPC) RewardPercentage(context.Context, uint64) (float64, error) {
	return f.percentage, nil
}
func (f *fakeRPC) RelaysToTokensMultiplier(context.Context, uint64) (float64, error) {
	return f.multiplier, nil
}
func (f *fakeRPC) StakeWeight(context.Context, uint64) (rpc.StakeWeightParams, error) {
	return f.weights, nil
}

var _ rpc.Client = (*fakeRPC)(nil)

// fakeLocator answers from a host table and counts lookups.
type fakeLocator struct {
	mu      sync.Mutex
	answers map[string]geo.Location
	lookups map[string]int
}

func (l *fakeLocator) Locate(_ context.Context, host string) (*geo.Location, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lookups == nil {
		l.lookups = map[string]int{}
	}
	l.lookups[host]++
	loc, ok := l.answers[host]
	if !ok {
		return nil, fmt.Errorf("%w: %s", geo.ErrLookupFailed, host)
	}
	return &loc, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []redis.ProgressEvent
}

func (p *fakePublisher) PublishProgress(_ context.Context, ev redis.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type fakePrices struct {
	store db.PriceStore
	price map[string]float64
}

func (p *fakePrices) RecordCurrent(ctx context.Context, coin, currency string, height uint64) error {
	v, ok := p.price[coin]
	if !ok {
		return errors.New("unknown coin " + coin)
	}
	return p.store.ReplacePrice(ctx, models.CoinPrice{Coin: coin, VsCurrency: currency, Price: v, Height: height})
}

type fakeRelayStats struct {
	latency []models.LatencyCache
	errs    []models.ErrorsCache
	err     error
}

func (f *fakeRelayStats) Latency(context.Context, models.HeightRange) ([]models.LatencyCache, error) {
	return f.latency, f.err
}

func (f *fakeRelayStats) Errors(context.Context, models.HeightRange) ([]models.ErrorsCache, error) {
	return f.errs, f.err
}
