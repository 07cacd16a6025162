// Package config gathers the environment driven settings shared by the collector and the CLI.
package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
)

// RPC holds chain endpoint settings.
type RPC struct {
	MainURL      string
	NodeTemplate string
	NodeFrom     int
	NodeTo       int
	Username     string
	Password     string
	Timeout      time.Duration
	MaxAttempts  int
	LagTolerance uint64
	Workers      int
	PerPage      int
}

// Storage selects how repositories talk to Postgres.
type Storage struct {
	Driver   string // "pool" or "conn"
	CredsDir string
	Env      string
	MaxConns int32
}

// Geo configures the location provider.
type Geo struct {
	Provider string // "ipapi" or "maxmind"
	IPAPIURL string
	IPAPIKey string
	CityDB   string
	ASNDB    string
	RPS      float64
	CacheTTL time.Duration
	RanFrom  string
	Workers  int
}

// Collector configures the scheduled services.
type Collector struct {
	Addr            string
	AdminUser       string
	AdminPassword   string
	AdminToken      string
	SessionSecret   string
	HeightCron      string
	RangeCron       string
	PriceCron       string
	EndpointCron    string
	HeightLookback  uint64
	RangeSize       uint64
	CacheSetWindows []string
	Parallelism     int
	Coins           []string
	Currency        string
	RedisEnabled    bool
	EventsChannel   string
}

// Config is the full process configuration.
type Config struct {
	RPC       RPC
	Storage   Storage
	Geo       Geo
	Collector Collector
	PriceURL  string
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(utils.Env("ENV_FILE", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return FromEnv(), nil
}

// FromEnv reads the configuration from the current environment only.
func FromEnv() *Config {
	return &Config{
		RPC: RPC{
			MainURL:      utils.Env("RPC_MAIN_URL", "http://node1.thunderstake.io/"),
			NodeTemplate: utils.Env("RPC_NODE_TEMPLATE", "http://node%d.thunderstake.io/"),
			NodeFrom:     utils.EnvInt("RPC_NODE_FROM", 1700),
			NodeTo:       utils.EnvInt("RPC_NODE_TO", 1995),
			Username:     utils.Env("RPC_USERNAME", ""),
			Password:     utils.Env("RPC_PASSWORD", ""),
			Timeout:      utils.EnvDuration("RPC_TIMEOUT", 15*time.Second),
			MaxAttempts:  utils.EnvInt("RPC_MAX_ATTEMPTS", 5),
			LagTolerance: utils.EnvUint64("RPC_LAG_TOLERANCE", 3),
			Workers:      utils.EnvInt("RPC_VALIDATION_WORKERS", 8),
			PerPage:      utils.EnvInt("RPC_PER_PAGE", 50000),
		},
		Storage: Storage{
			Driver:   utils.Env("STORAGE_DRIVER", "pool"),
			CredsDir: utils.Env("CREDS_DIR", "creds"),
			Env:      utils.Env("ENV", "dev"),
			MaxConns: int32(utils.EnvInt("POSTGRES_MAX_CONNS", 20)),
		},
		Geo: Geo{
			Provider: utils.Env("GEO_PROVIDER", "ipapi"),
			IPAPIURL: utils.Env("IPAPI_URL", "http://pro.ip-api.com"),
			IPAPIKey: utils.Env("IPAPI_KEY", ""),
			CityDB:   utils.Env("GEOIP_CITY_DB", "GeoLite2-City.mmdb"),
			ASNDB:    utils.Env("GEOIP_ASN_DB", "GeoLite2-ASN.mmdb"),
			RPS:      float64(utils.EnvInt("IPAPI_RPS", 10)),
			CacheTTL: utils.EnvDuration("GEO_CACHE_TTL", 6*time.Hour),
			RanFrom:  utils.Env("RAN_FROM", ""),
			Workers:  utils.EnvInt("GEO_WORKERS", 4),
		},
		Collector: Collector{
			Addr:            utils.Env("ADDR", ":3002"),
			AdminUser:       utils.Env("ADMIN_USER", "admin"),
			AdminPassword:   utils.Env("ADMIN_PASSWORD", "admin"),
			AdminToken:      utils.Env("ADMIN_TOKEN", ""),
			SessionSecret:   utils.Env("SESSION_SECRET", "change-me-please"),
			HeightCron:      utils.Env("HEIGHT_CRON", "0 */5 * * * *"),
			RangeCron:       utils.Env("RANGE_CRON", "0 0 * * * *"),
			PriceCron:       utils.Env("PRICE_CRON", "0 */15 * * * *"),
			EndpointCron:    utils.Env("ENDPOINT_CRON", "0 0 */6 * * *"),
			HeightLookback:  utils.EnvUint64("HEIGHT_LOOKBACK", 24),
			RangeSize:       utils.EnvUint64("RANGE_SIZE", 4),
			CacheSetWindows: utils.EnvList("CACHE_SET_WINDOWS", []string{"24h", "168h"}),
			Parallelism:     utils.EnvInt("HEIGHT_PARALLELISM", 4),
			Coins:           utils.EnvList("PRICE_COINS", []string{"pokt"}),
			Currency:        utils.Env("PRICE_CURRENCY", "usd"),
			RedisEnabled:    utils.EnvBool("REDIS_ENABLED", false),
			EventsChannel:   utils.Env("EVENTS_CHANNEL", "poktinfo:progress"),
		},
		PriceURL: utils.Env("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
	}
}
