package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

const coinbaseBaseURL = "https://api.coinbase.com/v2"

// CoinbaseSource fetches the SOL/USD rate from Coinbase's exchange-rates
// endpoint. Coinbase reports rates as strings.
type CoinbaseSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinbaseSource creates the source with the public Coinbase endpoint.
func NewCoinbaseSource(httpClient *http.Client) *CoinbaseSource {
	return &CoinbaseSource{
		baseURL:    coinbaseBaseURL,
		httpClient: httpClient,
	}
}

func (s *CoinbaseSource) Name() string { return "coinbase" }

func (s *CoinbaseSource) Fetch(ctx context.Context) (float64, error) {
	url := s.baseURL + "/exchange-rates?currency=SOL"

	body, err := fetchBody(ctx, s.httpClient, url)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Data struct {
			Rates map[string]string `json:"rates"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode coinbase response: %w", err)
	}

	raw, ok := resp.Data.Rates["USD"]
	if !ok {
		return 0, fmt.Errorf("coinbase response missing USD rate")
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coinbase USD rate %q: %w", raw, err)
	}
	return price, nil
}
