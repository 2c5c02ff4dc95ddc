package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StockTool fetches the latest quote for a ticker symbol from the Yahoo
// Finance chart endpoint.
type StockTool struct {
	BaseURL string
	Client  *http.Client
}

func NewStockTool() *StockTool {
	return &StockTool{
		BaseURL: "https://query1.finance.yahoo.com/v8/finance/chart",
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *StockTool) Name() string {
	return "stock_price"
}

func (s *StockTool) Description() string {
	return "Get the latest market price and currency for a stock ticker symbol."
}

func (s *StockTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbol": map[string]any{
				"type":        "string",
				"description": "The ticker symbol (e.g., AAPL, TSLA)",
			},
		},
		"required": []string{"symbol"},
	}
}

func (s *StockTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.Symbol == "" {
		return "", fmt.Errorf("symbol is required")
	}

	url := fmt.Sprintf("%s/%s?interval=1d&range=1d", s.BaseURL, args.Symbol)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch quote: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("quote endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		Chart struct {
			Result []struct {
				Meta struct {
					Symbol             string  `json:"symbol"`
					Currency           string  `json:"currency"`
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
			Error *struct {
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode quote response: %v", err)
	}
	if payload.Chart.Error != nil {
		return "", fmt.Errorf("quote lookup failed: %s", payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return "", fmt.Errorf("no quote data for %s", args.Symbol)
	}

	meta := payload.Chart.Result[0].Meta
	return fmt.Sprintf("%s: %.2f %s", meta.Symbol, meta.RegularMarketPrice, meta.Currency), nil
}
