package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinforward/gateway/types"
)

// Source supplies the fiat price per unit for each supported coin. A fetch
// is all-or-nothing: either the full table comes back or an error does.
type Source interface {
	FetchRates(ctx context.Context) (map[types.CoinType]decimal.Decimal, error)
}

// HTTPSource fetches a JSON document of the form {"BTC": "43250.75", ...}
// from a rate endpoint.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) FetchRates(ctx context.Context) (map[types.CoinType]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, types.WrapError(types.ErrRateUnavailable, "building rate request failed", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, types.WrapError(types.ErrRateUnavailable, "rate fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrRateUnavailable, fmt.Sprintf("rate endpoint returned %d", resp.StatusCode))
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, types.WrapError(types.ErrRateUnavailable, "decoding rate response failed", err)
	}

	table := make(map[types.CoinType]decimal.Decimal, len(raw))
	for symbol, value := range raw {
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, types.WrapError(types.ErrRateUnavailable, fmt.Sprintf("bad rate value for %s", symbol), err)
		}
		table[types.CoinType(symbol)] = rate
	}
	return table, nil
}

// StaticSource serves a fixed table. Intended for demos and tests.
type StaticSource struct {
	Table map[types.CoinType]decimal.Decimal
	Err   error
}

func (s *StaticSource) FetchRates(ctx context.Context) (map[types.CoinType]decimal.Decimal, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[types.CoinType]decimal.Decimal, len(s.Table))
	for k, v := range s.Table {
		out[k] = v
	}
	return out, nil
}
