// Package okx fetches historical candles from the OKX v5 market-data API.
package okx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"alphabot/internal/model"

	"github.com/shopspring/decimal"
)

const (
	historyCandlesPath = "/api/v5/market/history-candles"

	codeOK         = "0"
	codeNoMoreData = "51001"
	codeRateLimit  = "50011"

	maxBodyBytes = 4 << 20
)

// Config configures the client.
type Config struct {
	BaseURL string        // default https://www.okx.com
	Timeout time.Duration // per request, default 10s
}

// PageRequest selects one page of candles.
type PageRequest struct {
	InstID string // instrument, e.g. BTC-USDT
	Bar    string // bar interval, e.g. 1H
	After  int64  // exclusive lower bound, ms since epoch
	Limit  int
}

// Client is a minimal REST client for the history-candles endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// New creates a client.
func New(cfg Config, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.okx.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

type apiResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// FetchPage returns the candles strictly after req.After, oldest first.
// It returns model.ErrEndOfData when the exchange has nothing further and a
// *model.TransportError for every other failure.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("instId", req.InstID)
	q.Set("bar", req.Bar)
	q.Set("after", strconv.FormatInt(req.After, 10))
	q.Set("limit", strconv.Itoa(req.Limit))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+historyCandlesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &model.TransportError{Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &model.TransportError{Err: err, Retryable: isNetworkError(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &model.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err), Retryable: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.TransportError{
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, &model.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	switch ar.Code {
	case codeOK:
	case codeNoMoreData:
		return nil, model.ErrEndOfData
	default:
		return nil, &model.TransportError{
			StatusCode: resp.StatusCode,
			Code:       ar.Code,
			Msg:        ar.Msg,
			Retryable:  ar.Code == codeRateLimit,
		}
	}
	if len(ar.Data) == 0 {
		return nil, model.ErrEndOfData
	}

	candles := make([]model.Candle, 0, len(ar.Data))
	for _, row := range ar.Data {
		cdl, err := parseRow(req.InstID, row)
		if err != nil {
			return nil, &model.TransportError{StatusCode: resp.StatusCode, Err: err}
		}
		candles = append(candles, cdl)
	}

	// Oldest first, whatever order the endpoint used.
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].TS < candles[j].TS })

	c.log.Debug("fetched page",
		"inst_id", req.InstID,
		"after", req.After,
		"count", len(candles))
	return candles, nil
}

// parseRow decodes [ts_ms, open, high, low, close, volume, ...].
func parseRow(symbol string, row []string) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("candle row has %d fields, want >= 6", len(row))
	}
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("candle ts %q: %w", row[0], err)
	}
	var vals [5]decimal.Decimal
	for i := range vals {
		v, err := decimal.NewFromString(row[i+1])
		if err != nil {
			return model.Candle{}, fmt.Errorf("candle field %d %q: %w", i+1, row[i+1], err)
		}
		vals[i] = v
	}
	return model.Candle{
		Symbol: symbol,
		TS:     model.FromMillis(ms),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
