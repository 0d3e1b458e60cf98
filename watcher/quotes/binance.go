package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

const binanceBaseURL = "https://api.binance.com/api/v3"

// BinanceSource fetches the SOLUSDT spot ticker from Binance.
type BinanceSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewBinanceSource creates the source with the public Binance endpoint.
func NewBinanceSource(httpClient *http.Client) *BinanceSource {
	return &BinanceSource{
		baseURL:    binanceBaseURL,
		httpClient: httpClient,
	}
}

func (s *BinanceSource) Name() string { return "binance" }

func (s *BinanceSource) Fetch(ctx context.Context) (float64, error) {
	url := s.baseURL + "/ticker/price?symbol=SOLUSDT"

	body, err := fetchBody(ctx, s.httpClient, url)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode binance response: %w", err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid binance price %q: %w", resp.Price, err)
	}
	return price, nil
}
