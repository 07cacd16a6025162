package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/thunderhead-labs/poktinfo/pkg/metrics"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const ipAPIFields = "status,message,continent,country,countryCode,region,regionName,city,zip,lat,lon,timezone,isp,org,as,query"

type ipAPIResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Query      string  `json:"query"`
	Continent  string  `json:"continent"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	ISP        string  `json:"isp"`
	Org        string  `json:"org"`
	AS         string  `json:"as"`
}

// IPAPIOpts configures an IPAPI locator.
type IPAPIOpts struct {
	BaseURL    string
	Key        string
	RPS        float64
	CacheTTL   time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// IPAPI geolocates through the ip-api.com JSON endpoint. Answers are cached per query and
// requests are rate limited.
type IPAPI struct {
	baseURL string
	key     string
	client  *http.Client
	limiter *rate.Limiter
	cache   *ttlcache.Cache[string, Location]
	logger  *zap.Logger

	stop sync.Once
}

// NewIPAPI returns an ip-api locator. Expired answers are evicted in the background until
// Close is called.
func NewIPAPI(o IPAPIOpts) *IPAPI {
	if o.BaseURL == "" {
		o.BaseURL = "http://pro.ip-api.com"
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Hour
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}
	limit := rate.Inf
	if o.RPS > 0 {
		limit = rate.Limit(o.RPS)
	}
	cache := ttlcache.New(ttlcache.WithTTL[string, Location](o.CacheTTL))
	go cache.Start()
	return &IPAPI{
		baseURL: strings.TrimRight(o.BaseURL, "/"),
		key:     o.Key,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		cache:   cache,
		logger:  o.Logger,
	}
}

// Close stops the cache eviction loop.
func (c *IPAPI) Close() error {
	c.stop.Do(c.cache.Stop)
	return nil
}

// Locate returns the location of query (an IP or a host name).
func (c *IPAPI) Locate(ctx context.Context, query string) (*Location, error) {
	if item := c.cache.Get(query); item != nil {
		loc := item.Value()
		return &loc, nil
	}

	loc, err := c.fetch(ctx, query)
	outcome := "success"
	if err != nil {
		outcome = "fail"
	}
	metrics.GeoLookups.WithLabelValues(ProviderIPAPI, outcome).Inc()
	if err != nil {
		return nil, err
	}

	c.cache.Set(query, *loc, ttlcache.DefaultTTL)
	return loc, nil
}

func (c *IPAPI) fetch(ctx context.Context, query string) (*Location, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	if c.key != "" {
		q.Set("key", c.key)
	}
	q.Set("fields", ipAPIFields)
	endpoint := fmt.Sprintf("%s/json/%s?%s", c.baseURL, url.PathEscape(query), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, lookupFailed(query, err.Error())
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, lookupFailed(query, fmt.Sprintf("%d-%s", resp.StatusCode, body))
	}

	var out ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, lookupFailed(query, "decode: "+err.Error())
	}
	if out.Status == "fail" {
		c.logger.Debug("ip-api lookup failed", zap.String("query", query), zap.String("message", out.Message))
		return nil, lookupFailed(query, out.Message)
	}

	loc := &Location{
		IP:        out.Query,
		Continent: out.Continent,
		Country:   out.Country,
		Region:    out.RegionName,
		City:      out.City,
		Lat:       out.Lat,
		Lon:       out.Lon,
		ISP:       out.ISP,
		Org:       out.Org,
		AS:        out.AS,
	}
	maskCloudflare(loc)
	return loc, nil
}
