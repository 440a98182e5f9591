// Package priceoracle is a concrete vaultio.PriceOracle querying
// CoinGecko, Coinbase, and blockchain.info's ticker, in that order,
// falling back to a fixed display-only value if every backend fails.
// Unlike package chainapi's parallel fan-out reads, the backends are
// queried one at a time, each only after the previous one failed.
package priceoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/camiliosalomanda/satslegacy-vaultengine/vaulterrors"
)

// backend is one price source: a URL to fetch and a function that pulls
// the USD figure out of its response body.
type backend struct {
	name  string
	url   string
	parse func(body []byte) (float64, error)
}

var backends = []backend{
	{
		name: "coingecko",
		url:  "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd",
		parse: func(body []byte) (float64, error) {
			var v struct {
				Bitcoin struct {
					USD float64 `json:"usd"`
				} `json:"bitcoin"`
			}
			if err := json.Unmarshal(body, &v); err != nil {
				return 0, err
			}
			return v.Bitcoin.USD, nil
		},
	},
	{
		name: "coinbase",
		url:  "https://api.coinbase.com/v2/prices/BTC-USD/spot",
		parse: func(body []byte) (float64, error) {
			var v struct {
				Data struct {
					Amount string `json:"amount"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &v); err != nil {
				return 0, err
			}
			var amount float64
			if _, err := fmt.Sscanf(v.Data.Amount, "%f", &amount); err != nil {
				return 0, err
			}
			return amount, nil
		},
	},
	{
		name: "blockchain.info",
		url:  "https://blockchain.info/ticker",
		parse: func(body []byte) (float64, error) {
			var v map[string]struct {
				Last float64 `json:"last"`
			}
			if err := json.Unmarshal(body, &v); err != nil {
				return 0, err
			}
			usd, ok := v["USD"]
			if !ok {
				return 0, fmt.Errorf("blockchain.info ticker response missing USD entry")
			}
			return usd.Last, nil
		},
	},
}

// Client queries backends in order, returning the first successful
// price. FallbackUSD, when positive, is returned (with a warning
// surfaced through the logger) if every backend fails; it exists for
// display purposes only, per spec.md §6, and must never be treated as
// a live market price by a caller making a spend decision.
type Client struct {
	HTTP        *http.Client
	FallbackUSD float64
}

// New builds a Client with a conservative request timeout.
func New(fallbackUSD float64) *Client {
	return &Client{
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		FallbackUSD: fallbackUSD,
	}
}

// PriceUSD implements vaultio.PriceOracle.
func (c *Client) PriceUSD(ctx context.Context) (float64, error) {
	var errs []error
	for _, b := range backends {
		price, err := c.query(ctx, b)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
			continue
		}
		log.Debugf("price from %s: %.2f USD/BTC", b.name, price)
		return price, nil
	}

	if c.FallbackUSD > 0 {
		log.Warnf("all price backends failed (%v), using fixed display fallback", errs)
		return c.FallbackUSD, nil
	}

	return 0, vaulterrors.New(vaulterrors.KindUtxoFetchFailure, "all price backends failed: %v", errs)
}

func (c *Client) query(ctx context.Context, b backend) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return b.parse(body)
}
