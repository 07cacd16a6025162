package collector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
	"github.com/thunderhead-labs/poktinfo/app/collector/controller"
	"github.com/thunderhead-labs/poktinfo/pkg/config"
	"github.com/thunderhead-labs/poktinfo/pkg/db"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres/relaystats"
	"github.com/thunderhead-labs/poktinfo/pkg/geo"
	"github.com/thunderhead-labs/poktinfo/pkg/height"
	"github.com/thunderhead-labs/poktinfo/pkg/price"
	"github.com/thunderhead-labs/poktinfo/pkg/redis"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
)

// PoolConfig derives the connection settings of component from the storage config.
func PoolConfig(cfg config.Storage, component string) postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig(component)
	pc.Driver = cfg.Driver
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	return pc
}

// OpenStore connects to the poktinfo database and ensures its schema.
func OpenStore(ctx context.Context, cfg config.Storage, logger *zap.Logger, component string) (*poktinfo.DB, error) {
	creds, err := postgres.LoadCredentials(cfg.CredsDir, cfg.Env, postgres.PoktInfoCreds)
	if err != nil {
		return nil, err
	}
	return poktinfo.New(ctx, logger, creds, PoolConfig(cfg, component))
}

// NewRPC builds a chain client drawing from pool.
func NewRPC(cfg config.RPC, pool *rpc.Pool, logger *zap.Logger) *rpc.HTTPClient {
	return rpc.NewHTTPWithOpts(rpc.Opts{
		MainURL:     cfg.MainURL,
		Pool:        pool,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
		PerPage:     cfg.PerPage,
		Logger:      logger,
	})
}

// NewValidator builds the endpoint validator for cfg, recording probes when recorder is set.
func NewValidator(cfg config.RPC, prober rpc.Prober, pool *rpc.Pool, recorder rpc.EndpointRecorder, logger *zap.Logger) *rpc.Validator {
	v := rpc.NewValidator(prober, pool, logger)
	if cfg.NodeTemplate != "" {
		v.Template = cfg.NodeTemplate
	}
	if cfg.LagTolerance > 0 {
		v.LagTolerance = cfg.LagTolerance
	}
	if cfg.Workers > 0 {
		v.Workers = cfg.Workers
	}
	v.Recorder = recorder
	return v
}

// NewLocator builds the configured geolocation provider and the func releasing it.
func NewLocator(cfg config.Geo, logger *zap.Logger) (geo.Locator, func() error, error) {
	switch cfg.Provider {
	case geo.ProviderIPAPI:
		ip := geo.NewIPAPI(geo.IPAPIOpts{
			BaseURL:  cfg.IPAPIURL,
			Key:      cfg.IPAPIKey,
			RPS:      cfg.RPS,
			CacheTTL: cfg.CacheTTL,
			Logger:   logger,
		})
		return ip, ip.Close, nil
	case geo.ProviderMaxMind:
		mm, err := geo.OpenMaxMind(logger, cfg.CityDB, cfg.ASNDB)
		if err != nil {
			return nil, nil, err
		}
		return mm, mm.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown geolocation provider %q", cfg.Provider)
}

// Sources is the activity context built from cfg and the services its sources enable.
type Sources struct {
	Activity       *activity.Context
	HeightServices []string
	RangeServices  []string
	PricesEnabled  bool

	// Events is set when progress events are published.
	Events *redis.Client

	closers []func() error
}

// Close stops the activity workers and releases every optional source.
func (s *Sources) Close() error {
	s.Activity.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
	s.closers = nil
	return nil
}

// NewSources builds the activity context over store and client. Optional sources
// (geolocation, prices, relay databases, redis) that cannot be set up are logged and
// their services left disabled.
func NewSources(ctx context.Context, cfg *config.Config, logger *zap.Logger, store db.Store, client rpc.Client, heights price.HeightAt) *Sources {
	ac := &activity.Context{
		Logger:      logger.Named("activity"),
		Store:       store,
		RPC:         client,
		RanFrom:     cfg.Geo.RanFrom,
		Coins:       cfg.Collector.Coins,
		Currency:    cfg.Collector.Currency,
		Parallelism: cfg.Collector.Parallelism,
		GeoWorkers:  cfg.Geo.Workers,
	}
	s := &Sources{
		Activity:       ac,
		HeightServices: []string{activity.ServiceNodes, activity.ServiceRewards},
	}

	if locator, closeLocator, err := NewLocator(cfg.Geo, logger.Named("geo")); err != nil {
		logger.Warn("Geolocation disabled", zap.Error(err))
	} else {
		ac.Locator = locator
		s.closers = append(s.closers, closeLocator)
		s.HeightServices = append(s.HeightServices, activity.ServiceLocations)
	}

	if len(cfg.Collector.Coins) > 0 {
		gecko := price.NewCoinGecko(price.Opts{
			BaseURL: cfg.PriceURL,
			APIKey:  utils.Env("COINGECKO_API_KEY", ""),
			Logger:  logger.Named("price"),
		})
		ac.Prices = price.NewRecorder(logger.Named("price"), gecko, store, heights)
		s.PricesEnabled = true
	}

	relayPool := PoolConfig(cfg.Storage, "relaystats")
	if latency, err := relaystats.Open(ctx, logger, cfg.Storage.CredsDir, cfg.Storage.Env, postgres.LatencyCreds, relayPool); err != nil {
		logger.Warn("Latency summaries disabled", zap.Error(err))
	} else {
		ac.Latency = latency
		s.closers = append(s.closers, latency.Close)
		s.RangeServices = append(s.RangeServices, activity.ServiceLatency)
	}
	if errorsDB, err := relaystats.Open(ctx, logger, cfg.Storage.CredsDir, cfg.Storage.Env, postgres.ErrorsCreds, relayPool); err != nil {
		logger.Warn("Error summaries disabled", zap.Error(err))
	} else {
		ac.Errors = errorsDB
		s.closers = append(s.closers, errorsDB.Close)
		s.RangeServices = append(s.RangeServices, activity.ServiceErrors)
	}

	if cfg.Collector.RedisEnabled {
		rc, err := redis.NewClient(ctx, logger.Named("redis"))
		if err != nil {
			logger.Warn("Progress events disabled", zap.Error(err))
		} else {
			ac.Publisher = redis.NewProgressPublisher(rc, cfg.Collector.EventsChannel, logger.Named("events"))
			s.Events = rc
			s.closers = append(s.closers, rc.Close)
		}
	}
	return s
}

// Initialize wires the collector from cfg.
func Initialize(ctx context.Context, cfg *config.Config, logger *zap.Logger) (app *App, err error) {
	a := &App{
		Config:  cfg.Collector,
		RPC:     cfg.RPC,
		Logger:  logger,
		Clock:   clockwork.NewRealClock(),
		Running: xsync.NewMap[string, time.Time](),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := OpenStore(ctx, cfg.Storage, logger, "collector")
	if err != nil {
		return nil, fmt.Errorf("poktinfo database: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	a.Pool = rpc.NewPool()
	client := NewRPC(cfg.RPC, a.Pool, logger.Named("rpc"))
	a.Chain = client
	a.Validator = NewValidator(cfg.RPC, client, a.Pool, store, logger.Named("validator"))

	resolver, err := height.NewResolver(logger.Named("height"), client)
	if err != nil {
		return nil, err
	}
	a.Resolver = resolver
	a.closers = append(a.closers, func() error { resolver.Close(); return nil })

	src := NewSources(ctx, cfg, logger, store, client, resolver)
	a.closers = append(a.closers, src.Close)
	a.Runner = src.Activity
	a.HeightServices = src.HeightServices
	a.RangeServices = src.RangeServices
	a.PricesEnabled = src.PricesEnabled
	if src.Events != nil {
		a.Events = src.Events
	}

	ctl, err := controller.NewController(a, logger.Named("api"), cfg.Collector)
	if err != nil {
		return nil, err
	}
	a.Server = &http.Server{
		Addr:              cfg.Collector.Addr,
		Handler:           controller.WithCORS(ctl.NewRouter()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := a.SetupScheduler(ctx); err != nil {
		return nil, err
	}

	logger.Info("Collector initialized",
		zap.Strings("height_services", a.HeightServices),
		zap.Strings("range_services", a.RangeServices),
		zap.Bool("prices", a.PricesEnabled),
		zap.String("storage_driver", cfg.Storage.Driver))
	return a, nil
}
