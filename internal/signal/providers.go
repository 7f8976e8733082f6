package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Provider returns the current reference price.
type Provider interface {
	Name() string
	Price(ctx context.Context) (float64, error)
}

// --------------------------------------------------------------------------
// Binance REST
// --------------------------------------------------------------------------

// BinanceREST reads the spot ticker and one-minute klines.
type BinanceREST struct {
	baseURL    string
	symbol     string
	httpClient *http.Client
}

// NewBinanceREST creates a provider for symbol (e.g. BTCUSDT).
func NewBinanceREST(baseURL, symbol string, httpClient *http.Client) *BinanceREST {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &BinanceREST{baseURL: strings.TrimRight(baseURL, "/"), symbol: symbol, httpClient: httpClient}
}

func (b *BinanceREST) Name() string { return "binance_rest" }

// Price returns the last traded price.
func (b *BinanceREST) Price(ctx context.Context) (float64, error) {
	var body struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := getJSON(ctx, b.httpClient, b.baseURL+"/api/v3/ticker/price?symbol="+b.symbol, &body); err != nil {
		return 0, fmt.Errorf("signal: binance ticker: %w", err)
	}
	return parsePrice(body.Price)
}

// Klines returns up to limit one-minute closes, oldest first, stamped at
// each bar's close time.
func (b *BinanceREST) Klines(ctx context.Context, limit int) ([]domain.PricePoint, error) {
	var rows [][]json.RawMessage
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=1m&limit=%d", b.baseURL, b.symbol, limit)
	if err := getJSON(ctx, b.httpClient, url, &rows); err != nil {
		return nil, fmt.Errorf("signal: binance klines: %w", err)
	}
	out := make([]domain.PricePoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		var closeStr string
		var closeMs int64
		if json.Unmarshal(row[4], &closeStr) != nil || json.Unmarshal(row[6], &closeMs) != nil {
			continue
		}
		px, err := parsePrice(closeStr)
		if err != nil {
			continue
		}
		out = append(out, domain.PricePoint{Price: px, At: time.UnixMilli(closeMs)})
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Coinbase REST
// --------------------------------------------------------------------------

// CoinbaseREST reads the public spot price.
type CoinbaseREST struct {
	baseURL    string
	pair       string
	httpClient *http.Client
}

// NewCoinbaseREST creates a provider for pair (e.g. BTC-USD).
func NewCoinbaseREST(baseURL, pair string, httpClient *http.Client) *CoinbaseREST {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &CoinbaseREST{baseURL: strings.TrimRight(baseURL, "/"), pair: pair, httpClient: httpClient}
}

func (c *CoinbaseREST) Name() string { return "coinbase_rest" }

// Price returns the spot price.
func (c *CoinbaseREST) Price(ctx context.Context) (float64, error) {
	var body struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := getJSON(ctx, c.httpClient, c.baseURL+"/v2/prices/"+c.pair+"/spot", &body); err != nil {
		return 0, fmt.Errorf("signal: coinbase spot: %w", err)
	}
	return parsePrice(body.Data.Amount)
}

// --------------------------------------------------------------------------
// Cached price
// --------------------------------------------------------------------------

// CachedPrice reads the shared price cache, rejecting entries older than
// maxAge.
type CachedPrice struct {
	cache  domain.PriceCache
	asset  string
	maxAge time.Duration
	now    func() time.Time
}

// NewCachedPrice creates the last-resort provider.
func NewCachedPrice(cache domain.PriceCache, asset string, maxAge time.Duration) *CachedPrice {
	return &CachedPrice{cache: cache, asset: asset, maxAge: maxAge, now: time.Now}
}

func (c *CachedPrice) Name() string { return "cache" }

// Price returns the cached price when fresh enough.
func (c *CachedPrice) Price(ctx context.Context) (float64, error) {
	px, ts, err := c.cache.GetPrice(ctx, c.asset)
	if err != nil {
		return 0, err
	}
	if age := c.now().Sub(ts); c.maxAge > 0 && age > c.maxAge {
		return 0, fmt.Errorf("signal: cached price is %s old", age.Round(time.Second))
	}
	return px, nil
}

func getJSON(ctx context.Context, hc *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func parsePrice(s string) (float64, error) {
	px, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("signal: parse price %q: %w", s, err)
	}
	if px <= 0 {
		return 0, fmt.Errorf("signal: non-positive price %q", s)
	}
	return px, nil
}
