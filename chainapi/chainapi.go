// Package chainapi is a concrete vaultio.BlockchainAPI backed by one or
// more mempool.space-compatible REST endpoints. Grounded on
// macroadster-stargate's MempoolClient (ListConfirmedUTXOs,
// FetchTxOutput) for the endpoint shapes, generalized here to issue
// every lookup against all configured endpoints in parallel and keep
// the first success, per spec.md §5. An optional SOCKS5 dialer routes
// every request through Tor when configured, reusing the teacher's own
// (indirect) go-socks dependency instead of dropping it.
package chainapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/btcsuite/go-socks/socks"

	"github.com/camiliosalomanda/satslegacy-vaultengine/vaulterrors"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultio"
)

// Endpoint is one REST backend root, e.g. "https://mempool.space/api" or
// "https://blockstream.info/testnet/api".
type Endpoint struct {
	BaseURL string
}

// TorConfig routes every request through a local SOCKS5 proxy, the
// conventional way a Tor daemon exposes itself.
type TorConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// Client fans every lookup out across Endpoints and keeps the first
// successful response; it never blocks past ctx's deadline.
type Client struct {
	Endpoints []Endpoint
	HTTP      *http.Client
}

// New builds a Client for endpoints, wiring tor as the transport's
// dialer when enabled.
func New(endpoints []Endpoint, tor TorConfig) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	if tor.Enabled {
		proxy := &socks.Proxy{
			Addr: fmt.Sprintf("%s:%d", tor.Host, tor.Port),
		}
		httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return proxy.Dial(network, addr)
			},
		}
		log.Infof("routing chain API requests through Tor at %s:%d", tor.Host, tor.Port)
	}

	return &Client{Endpoints: endpoints, HTTP: httpClient}
}

// fanOut issues call against every endpoint concurrently and returns the
// first successful result. If every endpoint fails, it joins their
// errors into one KindUtxoFetchFailure.
func (c *Client) fanOut(ctx context.Context, call func(ctx context.Context, base string) (string, error)) (string, error) {
	if len(c.Endpoints) == 0 {
		return "", vaulterrors.New(vaulterrors.KindUtxoFetchFailure, "no blockchain API endpoints configured")
	}

	type outcome struct {
		body string
		err  error
	}

	results := make(chan outcome, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		ep := ep
		go func() {
			body, err := call(ctx, ep.BaseURL)
			results <- outcome{body: body, err: err}
		}()
	}

	var errs []error
	for range c.Endpoints {
		select {
		case res := <-results:
			if res.err == nil {
				return res.body, nil
			}
			errs = append(errs, res.err)
		case <-ctx.Done():
			return "", vaulterrors.New(vaulterrors.KindUtxoFetchFailure, "context deadline exceeded waiting on %d endpoint(s): %v", len(c.Endpoints), ctx.Err())
		}
	}

	return "", vaulterrors.New(vaulterrors.KindUtxoFetchFailure, "all %d endpoint(s) failed: %v", len(c.Endpoints), errs)
}

func (c *Client) get(ctx context.Context, base, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s%s: HTTP %d: %s", base, path, resp.StatusCode, string(body))
	}
	return string(body), nil
}

type addressStatsWire struct {
	ChainStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
		SpentTxoSum  int64 `json:"spent_txo_sum"`
	} `json:"chain_stats"`
}

// AddressStats implements vaultio.BlockchainAPI.
func (c *Client) AddressStats(ctx context.Context, address string) (vaultio.AddressStats, error) {
	body, err := c.fanOut(ctx, func(ctx context.Context, base string) (string, error) {
		return c.get(ctx, base, "/address/"+address)
	})
	if err != nil {
		return vaultio.AddressStats{}, err
	}

	var w addressStatsWire
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return vaultio.AddressStats{}, vaulterrors.New(vaulterrors.KindUtxoFetchFailure, "decode address stats: %v", err)
	}
	return vaultio.AddressStats{
		FundedTxoSum: w.ChainStats.FundedTxoSum,
		SpentTxoSum:  w.ChainStats.SpentTxoSum,
	}, nil
}

type utxoWire struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int32 `json:"block_height"`
		BlockTime   int64 `json:"block_time"`
	} `json:"status"`
}

// ListUTXOs implements vaultio.BlockchainAPI.
func (c *Client) ListUTXOs(ctx context.Context, address string) ([]vaultio.Utxo, error) {
	body, err := c.fanOut(ctx, func(ctx context.Context, base string) (string, error) {
		return c.get(ctx, base, "/address/"+address+"/utxo")
	})
	if err != nil {
		return nil, err
	}

	var wire []utxoWire
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, vaulterrors.New(vaulterrors.KindUtxoFetchFailure, "decode utxo list: %v", err)
	}

	out := make([]vaultio.Utxo, 0, len(wire))
	for _, u := range wire {
		out = append(out, vaultio.Utxo{
			TxID:  u.TxID,
			Vout:  u.Vout,
			Value: u.Value,
			Status: vaultio.UtxoStatus{
				Confirmed:   u.Status.Confirmed,
				BlockHeight: u.Status.BlockHeight,
				BlockTime:   time.Unix(u.Status.BlockTime, 0),
			},
		})
	}
	log.Debugf("fetched %d utxo(s) for %s", len(out), address)
	return out, nil
}

// TipHeight implements vaultio.BlockchainAPI.
func (c *Client) TipHeight(ctx context.Context) (int32, error) {
	body, err := c.fanOut(ctx, func(ctx context.Context, base string) (string, error) {
		return c.get(ctx, base, "/blocks/tip/height")
	})
	if err != nil {
		return 0, err
	}

	var height int32
	if _, err := fmt.Sscanf(body, "%d", &height); err != nil {
		return 0, vaulterrors.New(vaulterrors.KindUtxoFetchFailure, "decode tip height %q: %v", body, err)
	}
	return height, nil
}

// RecommendedFees implements vaultio.BlockchainAPI.
func (c *Client) RecommendedFees(ctx context.Context) (vaultio.FeeEstimates, error) {
	body, err := c.fanOut(ctx, func(ctx context.Context, base string) (string, error) {
		return c.get(ctx, base, "/v1/fees/recommended")
	})
	if err != nil {
		return vaultio.FeeEstimates{}, err
	}

	var f vaultio.FeeEstimates
	if err := json.Unmarshal([]byte(body), &f); err != nil {
		return vaultio.FeeEstimates{}, vaulterrors.New(vaulterrors.KindUtxoFetchFailure, "decode fee estimates: %v", err)
	}
	return f, nil
}

// RawTransaction implements vaultio.BlockchainAPI.
func (c *Client) RawTransaction(ctx context.Context, txid string) (string, error) {
	return c.fanOut(ctx, func(ctx context.Context, base string) (string, error) {
		return c.get(ctx, base, "/tx/"+txid+"/hex")
	})
}

// Broadcast implements vaultio.Broadcaster. Unlike the read paths,
// broadcast must not fan out — submitting the same transaction to
// several endpoints at once just means N redundant relays — so it
// tries endpoints in order and only moves to the next on failure.
func (c *Client) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	var errs []error
	for _, ep := range c.Endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.BaseURL+"/tx", bytes.NewBufferString(rawTxHex))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		req.Header.Set("Content-Type", "text/plain")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			errs = append(errs, fmt.Errorf("%s: HTTP %d: %s", ep.BaseURL, resp.StatusCode, string(body)))
			continue
		}

		txid := string(bytes.TrimSpace(body))
		log.Infof("broadcast %s via %s", txid, ep.BaseURL)
		return txid, nil
	}

	return "", vaulterrors.New(vaulterrors.KindBroadcastRejected, "broadcast failed on all %d endpoint(s): %v", len(c.Endpoints), errs)
}
