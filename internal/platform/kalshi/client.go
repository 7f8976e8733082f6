// Package kalshi is a REST client for the Kalshi trade API and a
// domain.Venue adapter on top of it.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// DefaultBaseURL is the production trade API root.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

// Client is the REST client for the Kalshi exchange API. It does not retry;
// callers treat a failure as "no data this cycle".
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit throttles outbound requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
// apiKeyID is the Kalshi API key identifier.
func NewClient(baseURL, apiKeyID string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(10, 10),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for RSA-signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	key, err := ParsePrivateKey(pemBytes)
	if err != nil {
		return err
	}
	c.privateKey = key
	return nil
}

// ParsePrivateKey decodes a PKCS8 or PKCS1 PEM RSA key.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		return pkcs1Key, nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	return rsaKey, nil
}

// GetMarkets returns one page of markets.
func (c *Client) GetMarkets(ctx context.Context, q MarketsQuery) (MarketsPage, error) {
	params := url.Values{}
	if q.SeriesTicker != "" {
		params.Set("series_ticker", q.SeriesTicker)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.MinCloseTs > 0 {
		params.Set("min_close_ts", strconv.FormatInt(q.MinCloseTs, 10))
	}
	if q.MaxCloseTs > 0 {
		params.Set("max_close_ts", strconv.FormatInt(q.MaxCloseTs, 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	var page MarketsPage
	if err := c.get(ctx, "/markets", params, &page); err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: get markets: %w", err)
	}
	return page, nil
}

// ListMarkets follows the cursor until the listing is exhausted or maxPages
// pages have been read.
func (c *Client) ListMarkets(ctx context.Context, q MarketsQuery, maxPages int) ([]Market, error) {
	var out []Market
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		p, err := c.GetMarkets(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Markets...)
		if p.Cursor == "" || len(p.Markets) == 0 {
			break
		}
		q.Cursor = p.Cursor
	}
	return out, nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	var resp struct {
		Market Market `json:"market"`
	}
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}
	return resp.Market, nil
}

// GetOrderbook returns the current orderbook for the given market ticker.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (Orderbook, error) {
	var resp struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker)+"/orderbook", nil, &resp); err != nil {
		return Orderbook{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}
	return resp.Orderbook, nil
}

// CreateOrder submits a new order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	var resp struct {
		Order Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", nil, req, &resp); err != nil {
		return Order{}, fmt.Errorf("kalshi: create order: %w", err)
	}
	return resp.Order, nil
}

// GetOrder returns an order by id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var resp struct {
		Order Order `json:"order"`
	}
	if err := c.get(ctx, "/portfolio/orders/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return Order{}, fmt.Errorf("kalshi: get order %s: %w", orderID, err)
	}
	return resp.Order, nil
}

// CancelOrder cancels an existing order by its ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.do(ctx, http.MethodDelete, "/portfolio/orders/"+url.PathEscape(orderID), nil, nil, nil); err != nil {
		return fmt.Errorf("kalshi: cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetBalance returns the available cash balance in cents.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	var resp struct {
		Balance int64 `json:"balance"`
	}
	if err := c.get(ctx, "/portfolio/balance", nil, &resp); err != nil {
		return 0, fmt.Errorf("kalshi: get balance: %w", err)
	}
	return resp.Balance, nil
}

// GetFills returns fills, optionally narrowed by ticker and order id.
func (c *Client) GetFills(ctx context.Context, ticker, orderID string) ([]Fill, error) {
	params := url.Values{}
	if ticker != "" {
		params.Set("ticker", ticker)
	}
	if orderID != "" {
		params.Set("order_id", orderID)
	}
	params.Set("limit", "200")

	var resp struct {
		Fills  []Fill `json:"fills"`
		Cursor string `json:"cursor"`
	}
	if err := c.get(ctx, "/portfolio/fills", params, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: get fills: %w", err)
	}
	return resp.Fills, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

// do builds, signs, sends and decodes a request against the Kalshi API.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, reqBody, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req, method, u.Path); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(method, resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// signRequest adds RSA authentication headers to the HTTP request. Without
// a key the request goes out unsigned.
// Kalshi uses RSA-PSS-SHA256 signatures over timestamp + method + path,
// where path is the full URL path without the query string.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		// Public market data only; portfolio endpoints answer 401.
		return nil
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	hash := sha256.Sum256([]byte(ts + method + path))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx HTTP status codes to domain sentinels. A 400 or
// 409 on order submission is a rejection.
func checkStatus(method string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	detail := fmt.Sprintf("%s (%s)", apiErr.Error.Message, apiErr.Error.Code)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, detail)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, detail)
	case http.StatusBadRequest, http.StatusConflict:
		if method != http.MethodPost {
			return fmt.Errorf("kalshi: HTTP %d: %s", statusCode, detail)
		}
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrOrderRejected, statusCode, detail)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s", statusCode, detail)
	}
}
