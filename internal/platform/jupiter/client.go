// Package jupiter is a REST client for the Jupiter price API, which serves
// spot prices for Solana-ecosystem tokens quoted against a vs-token.
package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// DefaultBaseURL is the public Jupiter price API root.
const DefaultBaseURL = "https://api.jup.ag/price/v2"

// mints maps ticker symbols to Solana mint addresses accepted by the API.
var mints = map[string]string{
	"SOL":  "So11111111111111111111111111111111111111112",
	"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"USDT": "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
	"ETH":  "7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs",
	"BTC":  "3NZ9JMVBmGAqocybic2c7LQCJScmgsAZ6vQqTDzcqmJh",
}

// Client calls the Jupiter price API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Jupiter price client. An empty baseURL selects the
// public endpoint.
func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// priceResponse mirrors the price/v2 payload shape.
type priceResponse struct {
	Data map[string]struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	} `json:"data"`
}

// GetQuote fetches the current price for an asset pair like "SOL/USDC". The
// base symbol is priced against the quote symbol's mint.
func (c *Client) GetQuote(ctx context.Context, pair string) (domain.Quote, error) {
	base, quote, ok := splitPair(pair)
	if !ok {
		return domain.Quote{}, fmt.Errorf("jupiter: malformed pair %q", pair)
	}
	vsMint, ok := mints[quote]
	if !ok {
		return domain.Quote{}, fmt.Errorf("jupiter: unsupported quote token %q", quote)
	}
	if _, ok := mints[base]; !ok {
		return domain.Quote{}, fmt.Errorf("jupiter: unsupported base token %q", base)
	}

	params := url.Values{}
	params.Set("ids", base)
	params.Set("vsToken", vsMint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: get price %s: %w", pair, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Quote{}, fmt.Errorf("jupiter: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var pr priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: decode price response: %w", err)
	}

	entry, ok := pr.Data[base]
	if !ok || entry.Price == "" {
		return domain.Quote{}, fmt.Errorf("jupiter: no price for %s: %w", pair, domain.ErrNotFound)
	}
	price, err := decimal.NewFromString(entry.Price)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: parse price %q: %w", entry.Price, err)
	}

	return domain.Quote{
		Pair:   strings.ToUpper(pair),
		Price:  price,
		Source: "jupiter",
		At:     time.Now().UTC(),
	}, nil
}

// splitPair splits "SOL/USDC" into its base and quote symbols.
func splitPair(pair string) (base, quote string, ok bool) {
	parts := strings.SplitN(strings.ToUpper(strings.TrimSpace(pair)), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
