package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zeromicro/go-zero/core/logx"
)

// fieldFallbacks is the order spec §6 specifies for resolving a price out
// of one entry of the response envelope.
var fieldFallbacks = []string{"usd_price", "price", "price_usd", "value"}

// HTTPClient is the reference PriceFeed implementation: a GET request with
// a comma-separated `ids` query param, tolerating both the nested
// `{data: {<mint>: {usd_price}}}` envelope and a flat `{<mint>: price}`
// map. It is built the same way the polymarket-mm exchange client wraps
// resty — base URL, timeout, retry on 5xx — generalized from that
// teacher-adjacent client to a read-only price lookup.
type HTTPClient struct {
	http *resty.Client
}

// NewHTTPClient builds a PriceFeed HTTP client pointed at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &HTTPClient{http: client}
}

// envelope decodes the nested "data" shape; GetPrices decodes the bare
// top-level shape separately into a flat map.
type envelope struct {
	Data map[string]map[string]any `json:"data"`
}

// GetPrices implements Feed.
func (c *HTTPClient) GetPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	var env envelope
	var flat map[string]any
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(ids, ",")).
		SetResult(&env).
		Get("/")
	if err != nil {
		return nil, fmt.Errorf("pricefeed: request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("pricefeed: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make(map[string]float64, len(ids))
	if len(env.Data) > 0 {
		for mint, fields := range env.Data {
			if v, ok := resolveField(fields); ok {
				out[mint] = v
			}
		}
		return out, nil
	}

	// Fall back to a flat map shape: {<mint>: price} or {<mint>: {...}}.
	if _, perr := c.http.R().SetContext(ctx).SetQueryParam("ids", strings.Join(ids, ",")).SetResult(&flat).Get("/"); perr == nil {
		for mint, v := range flat {
			switch val := v.(type) {
			case float64:
				out[mint] = val
			case map[string]any:
				if f, ok := resolveField(val); ok {
					out[mint] = f
				}
			}
		}
	}
	if len(out) == 0 {
		logx.Errorf("pricefeed: no prices resolved for ids=%v", ids)
	}
	return out, nil
}

func resolveField(fields map[string]any) (float64, bool) {
	for _, name := range fieldFallbacks {
		if v, ok := fields[name]; ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
