package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGeckoSource fetches the SOL/USD spot price from CoinGecko's simple
// price endpoint.
type CoinGeckoSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGeckoSource creates the source with the public CoinGecko endpoint.
func NewCoinGeckoSource(httpClient *http.Client) *CoinGeckoSource {
	return &CoinGeckoSource{
		baseURL:    coingeckoBaseURL,
		httpClient: httpClient,
	}
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

func (s *CoinGeckoSource) Fetch(ctx context.Context) (float64, error) {
	url := s.baseURL + "/simple/price?ids=solana&vs_currencies=usd"

	body, err := fetchBody(ctx, s.httpClient, url)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Solana struct {
			USD float64 `json:"usd"`
		} `json:"solana"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode coingecko response: %w", err)
	}
	return resp.Solana.USD, nil
}

// fetchBody issues a GET bounded by ctx and returns the response body on 200.
func fetchBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}
	return body, nil
}
