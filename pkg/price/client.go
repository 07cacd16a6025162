// Package price fetches coin prices from CoinGecko and records them against chain heights.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thunderhead-labs/poktinfo/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HistoryDateLayout is the dd-mm-yyyy form the history endpoint expects.
const HistoryDateLayout = "02-01-2006"

var (
	ErrUnknownCoin = errors.New("unknown coin")
	// ErrNoPrice is returned when the API has no market data for the requested day.
	ErrNoPrice = errors.New("no price available")
)

var coinIDs = map[string]string{
	"eth":  "ethereum",
	"pokt": "pocket-network",
}

// CoinID maps a ticker to its CoinGecko id.
func CoinID(coin string) (string, error) {
	id, ok := coinIDs[strings.ToLower(coin)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCoin, coin)
	}
	return id, nil
}

// Opts configures a CoinGecko client. RPS defaults to one request every three seconds.
type Opts struct {
	BaseURL    string
	APIKey     string
	RPS        float64
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// CoinGecko is a small client for the simple-price and coin-history endpoints.
type CoinGecko struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewCoinGecko(o Opts) *CoinGecko {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	limit := rate.Every(3 * time.Second)
	if o.RPS > 0 {
		limit = rate.Limit(o.RPS)
	}
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(o.BaseURL, "/"),
		apiKey:  o.APIKey,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  o.Logger,
	}
}

// Current returns the current price of coin (a ticker such as "pokt") in currency.
func (c *CoinGecko) Current(ctx context.Context, coin, currency string) (float64, error) {
	id, err := CoinID(coin)
	if err != nil {
		return 0, err
	}
	currency = strings.ToLower(currency)

	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", currency)

	var out map[string]map[string]float64
	if err := c.get(ctx, "/simple/price", q, &out); err != nil {
		return 0, err
	}
	p, ok := out[id][currency]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrNoPrice, id, currency)
	}
	return p, nil
}

// History returns the price of coin in currency on day (UTC). Days without market data
// return ErrNoPrice.
func (c *CoinGecko) History(ctx context.Context, coin, currency string, day time.Time) (float64, error) {
	id, err := CoinID(coin)
	if err != nil {
		return 0, err
	}
	currency = strings.ToLower(currency)

	q := url.Values{}
	q.Set("date", day.UTC().Format(HistoryDateLayout))
	q.Set("localization", "false")

	var out struct {
		MarketData *struct {
			CurrentPrice map[string]float64 `json:"current_price"`
		} `json:"market_data"`
	}
	if err := c.get(ctx, "/coins/"+url.PathEscape(id)+"/history", q, &out); err != nil {
		return 0, err
	}
	if out.MarketData == nil {
		return 0, fmt.Errorf("%w: %s on %s", ErrNoPrice, id, q.Get("date"))
	}
	p, ok := out.MarketData.CurrentPrice[currency]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("%w: %s/%s on %s", ErrNoPrice, id, currency, q.Get("date"))
	}
	return p, nil
}

func (c *CoinGecko) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("coingecko %s: %w", path, err)
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("coingecko %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("coingecko %s: decode: %w", path, err)
	}
	return nil
}
